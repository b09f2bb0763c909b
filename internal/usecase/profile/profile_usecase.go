package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/discovery"
	"github.com/gdugdh24/mpit2026-discovery/internal/usecase/scoring"
)

const dateLayout = "2006-01-02"

type ProfileUseCase struct {
	profileRepo repository.ProfileRepository
	distanceCap float64
	logger      *zap.Logger
	now         func() time.Time
}

func NewProfileUseCase(profileRepo repository.ProfileRepository, distanceCapKm float64, logger *zap.Logger) *ProfileUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileUseCase{
		profileRepo: profileRepo,
		distanceCap: distanceCapKm,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateProfileRequest represents profile creation request
type CreateProfileRequest struct {
	FirstName         string          `json:"first_name" binding:"required,min=1,max=100"`
	LastName          string          `json:"last_name" binding:"omitempty,max=100"`
	BirthDate         string          `json:"birth_date" binding:"required,datetime=2006-01-02"`
	Gender            domain.Gender   `json:"gender" binding:"required,oneof=male female non_binary"`
	Bio               *string         `json:"bio" binding:"omitempty,max=500"`
	Photos            []string        `json:"photos" binding:"omitempty,max=9,dive,url"`
	Interests         []string        `json:"interests" binding:"omitempty,max=20,dive,min=1,max=50"`
	Location          *string         `json:"location" binding:"omitempty,max=100"`
	LocationLat       *float64        `json:"location_lat" binding:"omitempty,min=-90,max=90"`
	LocationLon       *float64        `json:"location_lon" binding:"omitempty,min=-180,max=180"`
	LookingFor        []domain.Gender `json:"looking_for" binding:"omitempty,dive,oneof=male female non_binary"`
	PrefMinAge        *int            `json:"pref_min_age"`
	PrefMaxAge        *int            `json:"pref_max_age"`
	PrefMaxDistanceKm *int            `json:"pref_max_distance_km"`
}

// UpdatePreferencesRequest changes what the discovery screen looks for.
// Out-of-range values are clamped, not rejected.
type UpdatePreferencesRequest struct {
	Interests         *[]string       `json:"interests" binding:"omitempty,max=20,dive,min=1,max=50"`
	LookingFor        []domain.Gender `json:"looking_for" binding:"omitempty,dive,oneof=male female non_binary"`
	PrefMinAge        *int            `json:"pref_min_age"`
	PrefMaxAge        *int            `json:"pref_max_age"`
	PrefMaxDistanceKm *int            `json:"pref_max_distance_km"`
}

// ProfileResponse represents profile response with additional info
type ProfileResponse struct {
	*domain.Profile
	Age                int      `json:"age"`
	DistanceKm         *float64 `json:"distance_km,omitempty"`
	CompatibilityScore float64  `json:"compatibility_score"`
	SharedInterests    []string `json:"shared_interests"`
}

// CreateProfile creates the caller's profile once. Owners must be at least
// domain.MinimumAge on the day of creation.
func (uc *ProfileUseCase) CreateProfile(ctx context.Context, userID int, req *CreateProfileRequest) (*domain.Profile, error) {
	birthDate, err := time.Parse(dateLayout, req.BirthDate)
	if err != nil {
		return nil, err
	}
	if domain.AgeAt(birthDate, uc.now()) < domain.MinimumAge {
		return nil, domain.ErrUnderage
	}
	if !req.Gender.Valid() {
		return nil, domain.ErrInvalidGender
	}
	if (req.LocationLat == nil) != (req.LocationLon == nil) {
		return nil, domain.ErrIncompleteLocation
	}

	_, err = uc.profileRepo.GetByUserID(ctx, userID)
	if err == nil {
		return nil, domain.ErrProfileAlreadyExists
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, err
	}

	profile := &domain.Profile{
		UserID:      userID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		BirthDate:   birthDate,
		Gender:      req.Gender,
		Bio:         req.Bio,
		Photos:      nonNil(req.Photos),
		Interests:   cleanInterests(req.Interests),
		Location:    req.Location,
		LocationLat: req.LocationLat,
		LocationLon: req.LocationLon,
		LookingFor:  req.LookingFor,
	}
	if profile.LookingFor == nil {
		profile.LookingFor = []domain.Gender{}
	}
	uc.applyPreferences(profile, req.PrefMinAge, req.PrefMaxAge, req.PrefMaxDistanceKm)

	if err := uc.profileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}
	uc.logger.Info("profile created", zap.Int("user_id", userID))
	return profile, nil
}

// GetMyProfile returns current user's profile
func (uc *ProfileUseCase) GetMyProfile(ctx context.Context, userID int) (*domain.Profile, error) {
	return uc.profileRepo.GetByUserID(ctx, userID)
}

// UpdatePreferences stores new discovery preferences. Fields left nil keep
// their stored value.
func (uc *ProfileUseCase) UpdatePreferences(ctx context.Context, userID int, req *UpdatePreferencesRequest) (*domain.Profile, error) {
	profile, err := uc.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Interests != nil {
		profile.Interests = cleanInterests(*req.Interests)
	}
	if req.LookingFor != nil {
		profile.LookingFor = req.LookingFor
	}

	minAge, maxAge, distance := profile.PrefMinAge, profile.PrefMaxAge, profile.PrefMaxDistanceKm
	if req.PrefMinAge != nil {
		minAge = req.PrefMinAge
	}
	if req.PrefMaxAge != nil {
		maxAge = req.PrefMaxAge
	}
	if req.PrefMaxDistanceKm != nil {
		distance = req.PrefMaxDistanceKm
	}
	uc.applyPreferences(profile, minAge, maxAge, distance)

	if err := uc.profileRepo.UpdatePreferences(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetProfileByUserID returns profile by user ID with age, distance and
// compatibility as seen by the viewer.
func (uc *ProfileUseCase) GetProfileByUserID(ctx context.Context, targetUserID, viewerID int) (*ProfileResponse, error) {
	profile, err := uc.profileRepo.GetByUserID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	response := &ProfileResponse{
		Profile:         profile,
		Age:             profile.Age(uc.now()),
		SharedInterests: []string{},
	}

	viewer, err := uc.profileRepo.GetByUserID(ctx, viewerID)
	if err != nil {
		uc.logger.Debug("viewer profile unavailable", zap.Int("user_id", viewerID), zap.Error(err))
		return response, nil
	}
	if d, ok := scoring.ProfileDistance(viewer, profile); ok {
		response.DistanceKm = &d
	}
	response.CompatibilityScore = scoring.ProfileCompatibility(viewer, profile)
	if shared := scoring.SharedInterests(viewer.Interests, profile.Interests); shared != nil {
		response.SharedInterests = shared
	}
	return response, nil
}

// applyPreferences stores clamped preferences. Unset age bounds stay unset
// unless the other bound forces a value.
func (uc *ProfileUseCase) applyPreferences(p *domain.Profile, minAge, maxAge, distanceKm *int) {
	if minAge != nil || maxAge != nil {
		lo, hi := domain.MinimumAge, discovery.MaxAge
		if minAge != nil {
			lo = *minAge
		}
		if maxAge != nil {
			hi = *maxAge
		}
		lo, hi = discovery.ClampAgeRange(lo, hi)
		if minAge != nil || lo != domain.MinimumAge {
			p.PrefMinAge = &lo
		}
		if maxAge != nil || hi != discovery.MaxAge {
			p.PrefMaxAge = &hi
		}
	}
	if distanceKm != nil {
		capKm := uc.distanceCap
		if capKm <= 0 {
			capKm = 500
		}
		d := int(discovery.ClampDistance(float64(*distanceKm), capKm))
		p.PrefMaxDistanceKm = &d
	}
}

func cleanInterests(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		key := scoring.NormalizeInterest(tag)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
