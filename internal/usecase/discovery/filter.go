package discovery

import (
	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/scoring"
)

const (
	// MaxAge caps the upper age bound; it matches the profile form limits.
	MaxAge = 100

	defaultMaxDistanceKm = 50
	defaultDistanceCapKm = 500
)

// Overrides are explicit choices made on the discovery screen. Nil or empty
// fields fall back to the viewer's stored preferences.
type Overrides struct {
	MinAge        *int            `json:"min_age"`
	MaxAge        *int            `json:"max_age"`
	MaxDistanceKm *float64        `json:"max_distance_km"`
	Genders       []domain.Gender `json:"genders"`
	Interests     []string        `json:"interests"`
}

type FilterDefaults struct {
	MaxDistanceKm    float64
	MaxDistanceCapKm float64
}

// BuildFilter derives the discovery filter. Invalid values are clamped to
// the nearest valid one instead of being rejected.
func BuildFilter(viewer *domain.Profile, o Overrides, d FilterDefaults) domain.Filter {
	if d.MaxDistanceKm <= 0 {
		d.MaxDistanceKm = defaultMaxDistanceKm
	}
	if d.MaxDistanceCapKm <= 0 {
		d.MaxDistanceCapKm = defaultDistanceCapKm
	}
	if viewer == nil {
		viewer = &domain.Profile{}
	}

	minAge := firstInt(o.MinAge, viewer.PrefMinAge, domain.MinimumAge)
	maxAge := firstInt(o.MaxAge, viewer.PrefMaxAge, MaxAge)
	minAge, maxAge = ClampAgeRange(minAge, maxAge)

	distance := d.MaxDistanceKm
	if viewer.PrefMaxDistanceKm != nil {
		distance = float64(*viewer.PrefMaxDistanceKm)
	}
	if o.MaxDistanceKm != nil {
		distance = *o.MaxDistanceKm
	}
	distance = ClampDistance(distance, d.MaxDistanceCapKm)

	genders := validGenders(o.Genders)
	if len(genders) == 0 {
		genders = validGenders(viewer.LookingFor)
	}
	if len(genders) == 0 {
		genders = append([]domain.Gender(nil), domain.AllGenders...)
	}

	return domain.Filter{
		MinAge:        minAge,
		MaxAge:        maxAge,
		MaxDistanceKm: distance,
		Genders:       genders,
		Interests:     normalizeInterests(o.Interests),
	}
}

// ClampAgeRange enforces MinimumAge <= min <= max <= MaxAge.
func ClampAgeRange(minAge, maxAge int) (int, int) {
	if minAge < domain.MinimumAge {
		minAge = domain.MinimumAge
	}
	if minAge > MaxAge {
		minAge = MaxAge
	}
	if maxAge > MaxAge {
		maxAge = MaxAge
	}
	if maxAge < minAge {
		maxAge = minAge
	}
	return minAge, maxAge
}

// ClampDistance keeps a search radius within (0, capKm].
func ClampDistance(km, capKm float64) float64 {
	if km < 1 {
		return 1
	}
	if km > capKm {
		return capKm
	}
	return km
}

func firstInt(override, stored *int, fallback int) int {
	if override != nil {
		return *override
	}
	if stored != nil {
		return *stored
	}
	return fallback
}

func validGenders(in []domain.Gender) []domain.Gender {
	seen := make(map[domain.Gender]struct{}, len(in))
	out := make([]domain.Gender, 0, len(in))
	for _, g := range in {
		if !g.Valid() {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

func normalizeInterests(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, tag := range in {
		key := scoring.NormalizeInterest(tag)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
