package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("player not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
	ErrInvalidPlayer = errors.New("invalid player")
	ErrInvalidRating = errors.New("invalid rating state")
	ErrInvalidMatch  = errors.New("invalid match record")
)
