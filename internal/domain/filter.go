package domain

import "time"

// Filter is the discovery query derived from the viewer's profile and
// explicit UI overrides. It lives only as long as a discovery session.
type Filter struct {
	MinAge        int      `json:"min_age"`
	MaxAge        int      `json:"max_age"`
	MaxDistanceKm float64  `json:"max_distance_km"`
	Genders       []Gender `json:"genders"`
	Interests     []string `json:"interests,omitempty"`
}

func (f Filter) AcceptsGender(g Gender) bool {
	for _, accepted := range f.Genders {
		if accepted == g {
			return true
		}
	}
	return false
}

func (f Filter) AcceptsAge(age int) bool {
	return age >= f.MinAge && age <= f.MaxAge
}

// BirthDateRange converts the age range into inclusive birth date bounds:
// anyone born in [earliest, latest] is between MinAge and MaxAge on now.
// Dates are UTC calendar dates, as in AgeAt.
func (f Filter) BirthDateRange(now time.Time) (earliest, latest time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	latest = today.AddDate(-f.MinAge, 0, 0)
	earliest = today.AddDate(-(f.MaxAge + 1), 0, 1)
	return earliest, latest
}
