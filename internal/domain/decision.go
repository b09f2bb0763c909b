package domain

import (
	"strings"
	"time"
)

type DecisionKind string

const (
	DecisionLike      DecisionKind = "like"
	DecisionPass      DecisionKind = "pass"
	DecisionSuperLike DecisionKind = "super_like"
)

// ParseDecisionKind accepts the wire names plus a few client spellings.
func ParseDecisionKind(s string) (DecisionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like":
		return DecisionLike, nil
	case "pass", "dislike":
		return DecisionPass, nil
	case "super_like", "superlike", "super-like":
		return DecisionSuperLike, nil
	}
	return "", ErrInvalidDecisionKind
}

func (k DecisionKind) Valid() bool {
	switch k {
	case DecisionLike, DecisionPass, DecisionSuperLike:
		return true
	}
	return false
}

// IsPositive reports whether the kind counts towards a mutual match.
func (k DecisionKind) IsPositive() bool {
	return k == DecisionLike || k == DecisionSuperLike
}

// Decision is unique per (ActorID, TargetID); a repeated decision overwrites.
type Decision struct {
	ID        string       `json:"id" db:"id"`
	ActorID   int          `json:"actor_id" db:"actor_id"`
	TargetID  int          `json:"target_id" db:"target_id"`
	Kind      DecisionKind `json:"kind" db:"kind"`
	DecidedAt time.Time    `json:"decided_at" db:"decided_at"`
}
