package domain

import (
	"strings"
	"time"
)

// MinimumAge is the youngest age a profile may be created with.
const MinimumAge = 18

type Gender string

const (
	GenderMale      Gender = "male"
	GenderFemale    Gender = "female"
	GenderNonBinary Gender = "non_binary"
)

// AllGenders is used when a viewer has not stated who they are looking for.
var AllGenders = []Gender{GenderMale, GenderFemale, GenderNonBinary}

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary:
		return true
	}
	return false
}

type Profile struct {
	ID                int        `json:"id" db:"id"`
	UserID            int        `json:"user_id" db:"user_id"`
	FirstName         string     `json:"first_name" db:"first_name"`
	LastName          string     `json:"last_name" db:"last_name"`
	BirthDate         time.Time  `json:"birth_date" db:"birth_date"`
	Gender            Gender     `json:"gender" db:"gender"`
	Bio               *string    `json:"bio" db:"bio"`
	Photos            []string   `json:"photos" db:"photos"`
	Interests         []string   `json:"interests" db:"interests"`
	Location          *string    `json:"location" db:"location"`
	LocationLat       *float64   `json:"location_lat" db:"location_lat"`
	LocationLon       *float64   `json:"location_lon" db:"location_lon"`
	LookingFor        []Gender   `json:"looking_for" db:"looking_for"`
	PrefMaxDistanceKm *int       `json:"pref_max_distance_km" db:"pref_max_distance_km"`
	PrefMinAge        *int       `json:"pref_min_age" db:"pref_min_age"`
	PrefMaxAge        *int       `json:"pref_max_age" db:"pref_max_age"`
	IsOnline          bool       `json:"is_online" db:"is_online"`
	LastSeenAt        *time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Age returns the number of full years between the birth date and now.
func (p *Profile) Age(now time.Time) int {
	return AgeAt(p.BirthDate, now)
}

func (p *Profile) HasLocation() bool {
	return p.LocationLat != nil && p.LocationLon != nil
}

func (p *Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// AgeAt computes age in full years on now's UTC calendar date, counting
// the birthday itself as reached.
func AgeAt(birthDate, now time.Time) int {
	if birthDate.IsZero() {
		return 0
	}
	birthDate, now = birthDate.UTC(), now.UTC()
	years := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		years--
	}
	return years
}
