package discovery

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gdugdh24/mpit2026-discovery/internal/domain"
	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
)

// candidateShape is the minimum a remote row must satisfy to be shown.
type candidateShape struct {
	UserID    int       `validate:"gt=0"`
	FirstName string    `validate:"required,max=100"`
	BirthDate time.Time `validate:"required"`
	Gender    string    `validate:"required,oneof=male female non_binary"`
	Photos    []string  `validate:"dive,required"`
	Lat       *float64  `validate:"omitempty,gte=-90,lte=90"`
	Lon       *float64  `validate:"omitempty,gte=-180,lte=180"`
}

// RowError explains why a row was dropped.
type RowError struct {
	UserID int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("candidate %d rejected: %s", e.UserID, e.Reason)
}

// RowMapper turns loosely typed store rows into validated profiles.
type RowMapper struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewRowMapper() *RowMapper {
	return &RowMapper{
		validate: validator.New(),
		now:      time.Now,
	}
}

// Map validates one record. Rows with only one coordinate keep neither, so
// they are treated like rows without a location.
func (m *RowMapper) Map(rec repository.ProfileRecord) (*domain.Profile, error) {
	shape := candidateShape{
		UserID: rec.UserID,
		Photos: []string(rec.Photos),
		Lat:    rec.LocationLat,
		Lon:    rec.LocationLon,
	}
	if rec.FirstName != nil {
		shape.FirstName = strings.TrimSpace(*rec.FirstName)
	}
	if rec.BirthDate != nil {
		shape.BirthDate = *rec.BirthDate
	}
	if rec.Gender != nil {
		shape.Gender = *rec.Gender
	}

	if err := m.validate.Struct(shape); err != nil {
		return nil, &RowError{UserID: rec.UserID, Reason: describeValidation(err)}
	}

	if domain.AgeAt(shape.BirthDate, m.now()) < domain.MinimumAge {
		return nil, &RowError{UserID: rec.UserID, Reason: "BirthDate:underage"}
	}

	profile := rec.ToProfile()
	profile.FirstName = shape.FirstName
	if (profile.LocationLat == nil) != (profile.LocationLon == nil) {
		profile.LocationLat, profile.LocationLon = nil, nil
	}
	if profile.Photos == nil {
		profile.Photos = []string{}
	}
	return profile, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+":"+fe.Tag())
	}
	return strings.Join(parts, ",")
}
