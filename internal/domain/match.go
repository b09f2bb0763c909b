package domain

import "time"

// Match is derived from two reciprocal positive decisions. It is not
// stored by this service; it is announced to the messaging subsystems.
type Match struct {
	User1ID     int       `json:"user1_id"`
	User2ID     int       `json:"user2_id"`
	MatchedAt   time.Time `json:"matched_at"`
	Icebreakers []string  `json:"icebreakers,omitempty"`
}

// NewMatch orders the pair so that User1ID < User2ID.
func NewMatch(a, b int, at time.Time) *Match {
	if a > b {
		a, b = b, a
	}
	return &Match{User1ID: a, User2ID: b, MatchedAt: at}
}

func (m *Match) HasUser(userID int) bool {
	return m.User1ID == userID || m.User2ID == userID
}

func (m *Match) GetOtherUserID(userID int) (int, bool) {
	if m.User1ID == userID {
		return m.User2ID, true
	}
	if m.User2ID == userID {
		return m.User1ID, true
	}
	return 0, false
}
