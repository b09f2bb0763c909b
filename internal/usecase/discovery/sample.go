package discovery

import (
	"time"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
)

// SampleLabel prefixes the bio of every sample profile.
const SampleLabel = "[sample profile]"

type sampleSeed struct {
	name      string
	age       int
	gender    domain.Gender
	bio       string
	interests []string
	lat, lon  float64
	located   bool
}

var sampleSeeds = []sampleSeed{
	{"Anna", 24, domain.GenderFemale, "Coffee, long walks and indie films.", []string{"coffee", "cinema", "walking"}, 55.7558, 37.6173, true},
	{"Dmitry", 29, domain.GenderMale, "Weekend climber, weekday engineer.", []string{"climbing", "travel", "coffee"}, 55.7512, 37.6184, true},
	{"Sasha", 26, domain.GenderNonBinary, "Synth nerd looking for gig buddies.", []string{"music", "concerts", "cinema"}, 0, 0, false},
	{"Maria", 31, domain.GenderFemale, "Plants, books, board games.", []string{"books", "board games", "plants"}, 55.7600, 37.6300, true},
	{"Ilya", 22, domain.GenderMale, "Runner. Will talk about marathons.", []string{"running", "travel"}, 0, 0, false},
	{"Kate", 27, domain.GenderFemale, "Learning to cook everything once.", []string{"cooking", "travel", "books"}, 55.7400, 37.6000, true},
	{"Oleg", 35, domain.GenderMale, "Dog person with a telescope.", []string{"dogs", "astronomy", "walking"}, 55.7700, 37.5900, true},
	{"Lena", 23, domain.GenderFemale, "Dancer and terrible singer.", []string{"dance", "music"}, 0, 0, false},
}

// SampleProfiles builds the development dataset served when the store is
// unavailable. Sample users have negative ids so they can never collide
// with stored users and are never persisted as decision targets.
func SampleProfiles(now time.Time) []*domain.Profile {
	profiles := make([]*domain.Profile, 0, len(sampleSeeds))
	for i, s := range sampleSeeds {
		bio := SampleLabel + " " + s.bio
		p := &domain.Profile{
			ID:         -(i + 1),
			UserID:     -(i + 1),
			FirstName:  s.name,
			BirthDate:  now.UTC().AddDate(-s.age, 0, -30),
			Gender:     s.gender,
			Bio:        &bio,
			Photos:     []string{},
			Interests:  s.interests,
			LookingFor: append([]domain.Gender(nil), domain.AllGenders...),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if s.located {
			lat, lon := s.lat, s.lon
			p.LocationLat, p.LocationLon = &lat, &lon
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// IsSample reports whether the user id belongs to the sample dataset.
func IsSample(userID int) bool {
	return userID < 0
}
