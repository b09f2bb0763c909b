package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const profileColumns = `
	id, user_id, first_name, last_name, birth_date, gender, bio,
	photos, interests, location, location_lat, location_lon,
	looking_for, pref_max_distance_km, pref_min_age, pref_max_age,
	is_online, last_seen_at, created_at, updated_at`

type profileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) repository.ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	query := `
		INSERT INTO profiles (
			user_id, first_name, last_name, birth_date, gender, bio,
			photos, interests, location, location_lat, location_lon,
			looking_for, pref_max_distance_km, pref_min_age, pref_max_age
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		profile.UserID, profile.FirstName, profile.LastName, profile.BirthDate,
		string(profile.Gender), profile.Bio,
		pq.Array(profile.Photos), pq.Array(profile.Interests),
		profile.Location, profile.LocationLat, profile.LocationLon,
		pq.Array(repository.GenderStrings(profile.LookingFor)),
		profile.PrefMaxDistanceKm, profile.PrefMinAge, profile.PrefMaxAge,
	).Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return domain.ErrProfileAlreadyExists
	}
	return err
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID int) (*domain.Profile, error) {
	var record repository.ProfileRecord
	query := `SELECT` + profileColumns + ` FROM profiles WHERE user_id = $1`
	err := r.db.GetContext(ctx, &record, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return record.ToProfile(), nil
}

func (r *profileRepository) UpdatePreferences(ctx context.Context, profile *domain.Profile) error {
	query := `
		UPDATE profiles
		SET interests = $1, looking_for = $2,
		    pref_max_distance_km = $3, pref_min_age = $4, pref_max_age = $5,
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $6
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(
		ctx, query,
		pq.Array(profile.Interests), pq.Array(repository.GenderStrings(profile.LookingFor)),
		profile.PrefMaxDistanceKm, profile.PrefMinAge, profile.PrefMaxAge,
		profile.UserID,
	).Scan(&profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProfileNotFound
	}
	return err
}

// SearchCandidates applies the gender and birth date constraints and drops
// anyone the viewer already decided on. Rows with a NULL birth date are
// returned on purpose so the caller can report them.
func (r *profileRepository) SearchCandidates(ctx context.Context, q repository.CandidateQuery) ([]repository.ProfileRecord, error) {
	var records []repository.ProfileRecord

	exclude := make([]int64, 0, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		exclude = append(exclude, int64(id))
	}

	query := `SELECT` + profileColumns + `
		FROM profiles p
		WHERE p.user_id <> $1
		  AND p.gender = ANY($2)
		  AND (p.birth_date IS NULL OR p.birth_date BETWEEN $3 AND $4)
		  AND NOT (p.user_id = ANY($5))
		  AND NOT EXISTS (
		      SELECT 1 FROM decisions d
		      WHERE d.actor_id = $1 AND d.target_id = p.user_id
		  )
		ORDER BY p.is_online DESC, p.last_seen_at DESC NULLS LAST, p.user_id
		LIMIT $6 OFFSET $7
	`
	err := r.db.SelectContext(ctx, &records, query,
		q.ViewerID, pq.Array(q.Genders), q.BornFrom, q.BornTo, pq.Array(exclude), q.Limit, q.Offset)
	return records, err
}
