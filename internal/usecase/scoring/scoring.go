// Package scoring holds the pure distance and compatibility functions used
// to filter and rank discovery candidates. Distances are in kilometres.
package scoring

import (
	"math"
	"strings"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
)

// EarthRadiusKm is the mean Earth radius. Every distance threshold in the
// service (pref_max_distance_km, filter MaxDistanceKm) is in the same unit.
const EarthRadiusKm = 6371.0

const degToRad = math.Pi / 180.0

// DistanceBetween returns the great-circle distance in km (haversine).
func DistanceBetween(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	lat1Rad := lat1 * degToRad
	lat2Rad := lat2 * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1Rad)*math.Cos(lat2Rad)*sinLon*sinLon
	// rounding can push a a hair outside [0, 1]
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// ProfileDistance is DistanceBetween for two profiles; ok is false when
// either side has no coordinates.
func ProfileDistance(a, b *domain.Profile) (distance float64, ok bool) {
	if a == nil || b == nil || !a.HasLocation() || !b.HasLocation() {
		return 0, false
	}
	return DistanceBetween(*a.LocationLat, *a.LocationLon, *b.LocationLat, *b.LocationLon), true
}

// CompatibilityScore is the Jaccard index of two interest sets scaled to
// [0, 100]. Tags compare case-insensitively; duplicates count once.
func CompatibilityScore(a, b []string) float64 {
	setA := InterestSet(a)
	setB := InterestSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for tag := range setA {
		if _, ok := setB[tag]; ok {
			common++
		}
	}
	union := len(setA) + len(setB) - common
	return float64(common) / float64(union) * 100
}

func ProfileCompatibility(a, b *domain.Profile) float64 {
	if a == nil || b == nil {
		return 0
	}
	return CompatibilityScore(a.Interests, b.Interests)
}

// SharedInterests returns the normalised tags present in both lists, in the
// order they appear in a.
func SharedInterests(a, b []string) []string {
	setB := InterestSet(b)
	seen := make(map[string]struct{})
	var shared []string
	for _, tag := range a {
		key := NormalizeInterest(tag)
		if key == "" {
			continue
		}
		if _, ok := setB[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		shared = append(shared, key)
	}
	return shared
}

func NormalizeInterest(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func InterestSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if key := NormalizeInterest(tag); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}
