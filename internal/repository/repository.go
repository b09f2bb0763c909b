package repository

import (
	"context"
	"time"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/lib/pq"
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	GetByUserID(ctx context.Context, userID int) (*domain.Profile, error)
	UpdatePreferences(ctx context.Context, profile *domain.Profile) error
	SearchCandidates(ctx context.Context, q CandidateQuery) ([]ProfileRecord, error)
}

type DecisionRepository interface {
	// Upsert stores the decision, overwriting any previous one for the same
	// pair, and returns the kind that was stored before (nil if none).
	Upsert(ctx context.Context, decision *domain.Decision) (*domain.DecisionKind, error)
	HasPositive(ctx context.Context, actorID, targetID int) (bool, error)
	// ListTargets returns everyone the actor has decided on, newest first.
	ListTargets(ctx context.Context, actorID int) ([]int, error)
}

// ExclusionCache remembers decided targets per viewer between sessions.
// It is a best-effort cache; DecisionRepository stays authoritative.
type ExclusionCache interface {
	Add(ctx context.Context, viewerID int, targetIDs ...int) error
	Members(ctx context.Context, viewerID int) ([]int, error)
}

// CandidateQuery is the part of the discovery filter the store evaluates.
type CandidateQuery struct {
	ViewerID   int
	Genders    []string
	BornFrom   time.Time
	BornTo     time.Time
	ExcludeIDs []int
	// Limit and Offset page through the rows in the store's stable order.
	Limit  int
	Offset int
}

// ProfileRecord is a profile row as returned by the store. Nothing in it
// is trusted until it has been validated into a domain.Profile.
type ProfileRecord struct {
	ID                int            `db:"id"`
	UserID            int            `db:"user_id"`
	FirstName         *string        `db:"first_name"`
	LastName          *string        `db:"last_name"`
	BirthDate         *time.Time     `db:"birth_date"`
	Gender            *string        `db:"gender"`
	Bio               *string        `db:"bio"`
	Photos            pq.StringArray `db:"photos"`
	Interests         pq.StringArray `db:"interests"`
	Location          *string        `db:"location"`
	LocationLat       *float64       `db:"location_lat"`
	LocationLon       *float64       `db:"location_lon"`
	LookingFor        pq.StringArray `db:"looking_for"`
	PrefMaxDistanceKm *int           `db:"pref_max_distance_km"`
	PrefMinAge        *int           `db:"pref_min_age"`
	PrefMaxAge        *int           `db:"pref_max_age"`
	IsOnline          bool           `db:"is_online"`
	LastSeenAt        *time.Time     `db:"last_seen_at"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

// ToProfile copies the record into a domain.Profile without validation.
func (r ProfileRecord) ToProfile() *domain.Profile {
	p := &domain.Profile{
		ID:                r.ID,
		UserID:            r.UserID,
		Bio:               r.Bio,
		Photos:            []string(r.Photos),
		Interests:         []string(r.Interests),
		Location:          r.Location,
		LocationLat:       r.LocationLat,
		LocationLon:       r.LocationLon,
		PrefMaxDistanceKm: r.PrefMaxDistanceKm,
		PrefMinAge:        r.PrefMinAge,
		PrefMaxAge:        r.PrefMaxAge,
		IsOnline:          r.IsOnline,
		LastSeenAt:        r.LastSeenAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.FirstName != nil {
		p.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		p.LastName = *r.LastName
	}
	if r.BirthDate != nil {
		p.BirthDate = *r.BirthDate
	}
	if r.Gender != nil {
		p.Gender = domain.Gender(*r.Gender)
	}
	p.LookingFor = make([]domain.Gender, 0, len(r.LookingFor))
	for _, g := range r.LookingFor {
		p.LookingFor = append(p.LookingFor, domain.Gender(g))
	}
	return p
}

// GenderStrings converts a gender set into its stored representation.
func GenderStrings(genders []domain.Gender) []string {
	out := make([]string, 0, len(genders))
	for _, g := range genders {
		out = append(out, string(g))
	}
	return out
}
