package domain

import "errors"

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileAlreadyExists = errors.New("profile already exists")
	ErrUnderage             = errors.New("profile owner must be at least 18")
	ErrInvalidGender        = errors.New("invalid gender")
	ErrIncompleteLocation   = errors.New("latitude and longitude must be set together")

	ErrCannotDecideSelf    = errors.New("cannot decide on own profile")
	ErrInvalidDecisionKind = errors.New("invalid decision kind")
	ErrRecordFailed        = errors.New("decision could not be saved")

	ErrNoSession     = errors.New("no active discovery session")
	ErrSessionClosed = errors.New("discovery session closed")
	ErrQueueEmpty    = errors.New("no candidate on screen")
	ErrGestureBusy   = errors.New("gesture already in progress")
	ErrNoDrag        = errors.New("no drag in progress")
	ErrFetchFailed   = errors.New("could not load candidates")
)
