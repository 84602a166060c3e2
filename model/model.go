package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BanEntry is one row of the server's banned-players list.
type BanEntry struct {
	PlayerUUID string
	Name       string
	Created    time.Time
	Source     string
	Expires    string
	Reason     string
}

// Submission is a single signed report sent to the reputation service.
type Submission struct {
	ID         uuid.UUID
	Timestamp  int64 // unix seconds
	PlayerUUID string
	Points     float64
	Comment    string
}

// Key returns the ledger key for the (player, timestamp) pair of s.
func (s Submission) Key() string { return LedgerKey(s.PlayerUUID, s.Timestamp) }

type LedgerEntry struct {
	LocalID  uuid.UUID `json:"local"`
	RemoteID string    `json:"remote,omitempty"`
}

type Registration struct {
	ServerUUID string
}

// LedgerKey composes the dedup key. ts must be unix seconds on every path.
func LedgerKey(playerUUID string, ts int64) string {
	return fmt.Sprintf("%s:%d", playerUUID, ts)
}
