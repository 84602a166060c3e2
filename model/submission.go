package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// BanPoints is the weight of an imported ban: the strongest negative report.
	BanPoints = -1.0

	minPoints = 0.1
	maxPoints = 1.0
)

// ValidatePoints accepts p in [-1,-0.1] or [0.1,1].
func ValidatePoints(p float64) error {
	a := math.Abs(p)
	if math.IsNaN(p) || a < minPoints || a > maxPoints {
		return fmt.Errorf("%w: points %v outside [-1,-0.1] or [0.1,1]", ErrValidation, p)
	}
	return nil
}

// NewBanSubmission builds the report for an entry of the ban list.
func NewBanSubmission(ban BanEntry, id uuid.UUID) (Submission, error) {
	if strings.TrimSpace(ban.PlayerUUID) == "" {
		return Submission{}, fmt.Errorf("%w: ban entry without player uuid", ErrValidation)
	}
	if ban.Created.IsZero() {
		return Submission{}, fmt.Errorf("%w: ban of %s has no creation time", ErrValidation, ban.PlayerUUID)
	}
	return Submission{
		ID:         id,
		Timestamp:  ban.Created.Unix(),
		PlayerUUID: ban.PlayerUUID,
		Points:     BanPoints,
		Comment:    ban.Reason,
	}, nil
}

// NewManualSubmission builds an operator-supplied report stamped with now.
func NewManualSubmission(playerUUID string, points float64, comment string, now time.Time, id uuid.UUID) (Submission, error) {
	if err := ValidatePoints(points); err != nil {
		return Submission{}, err
	}
	if strings.TrimSpace(playerUUID) == "" {
		return Submission{}, fmt.Errorf("%w: player uuid is required", ErrValidation)
	}
	return Submission{
		ID:         id,
		Timestamp:  now.Unix(),
		PlayerUUID: playerUUID,
		Points:     points,
		Comment:    comment,
	}, nil
}
