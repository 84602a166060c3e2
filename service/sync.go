package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collapsinghierarchy/repsync/message"
	"github.com/collapsinghierarchy/repsync/model"
	"github.com/collapsinghierarchy/repsync/store"
)

// SyncReport counts what one Sync did.
type SyncReport struct {
	Total     int // entries in the ban list
	Pending   int // entries not yet in the ledger
	Submitted int
	Rejected  int
	Skipped   int // entries without a usable key
}

// ErrAllRejected reports a run in which the service refused everything sent,
// typically because the key was never registered.
var ErrAllRejected = fmt.Errorf("%w: every submission was rejected", model.ErrRejected)

// Err returns ErrAllRejected when submissions were attempted and none was
// accepted; otherwise nil.
func (r SyncReport) Err() error {
	if r.Rejected > 0 && r.Submitted == 0 {
		return fmt.Errorf("%w (%d)", ErrAllRejected, r.Rejected)
	}
	return nil
}

// Sync submits every ban not yet present in the ledger, one at a time.
//
// A remote rejection is logged and the entry stays eligible for the next run.
// Any other failure stops the run; entries reconciled before it are kept.
func (s *Service) Sync(ctx context.Context) (SyncReport, error) {
	var rep SyncReport

	bans, err := s.Bans.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("sync: %w", err)
	}
	ledger, err := store.Open(ctx, s.Store)
	if err != nil {
		return rep, fmt.Errorf("sync: %w", err)
	}

	pending := s.diff(bans, ledger, &rep)
	rep.Total = len(bans)
	rep.Pending = len(pending)
	s.log.Info("sync started", "bans", rep.Total, "pending", rep.Pending, "ledger", ledger.Len())

	for _, ban := range pending {
		sub, err := model.NewBanSubmission(ban, s.newID())
		if err != nil {
			return rep, fmt.Errorf("sync: build: %w", err)
		}
		signed, err := s.Signer.ClearSign(message.ForSubmission(sub).Encode())
		if err != nil {
			return rep, fmt.Errorf("sync: sign %s: %w", sub.Key(), err)
		}

		remoteID, err := s.API.Submit(ctx, signed)
		rejected := errors.Is(err, model.ErrRejected)
		if err != nil && !rejected {
			return rep, fmt.Errorf("sync: submit %s: %w", sub.Key(), err)
		}

		waitErr := s.pace(ctx)

		if rejected {
			rep.Rejected++
			s.log.Warn("submission rejected", "key", sub.Key(), "err", err)
		} else {
			// the response is in hand; record it even if ctx was cancelled while pacing
			if err := ledger.Record(context.WithoutCancel(ctx), sub.PlayerUUID, sub.Timestamp, sub.ID, remoteID); err != nil {
				return rep, fmt.Errorf("sync: %w", err)
			}
			rep.Submitted++
			s.log.Debug("submission accepted", "key", sub.Key(), "local", sub.ID, "remote", remoteID)
		}

		if waitErr != nil {
			return rep, waitErr
		}
	}

	s.log.Info("sync finished",
		"submitted", rep.Submitted, "rejected", rep.Rejected, "skipped", rep.Skipped)
	return rep, nil
}

// diff returns the ban entries whose key is absent from the ledger, in ban
// list order. Repeated keys are submitted once.
func (s *Service) diff(bans []model.BanEntry, ledger *store.Ledger, rep *SyncReport) []model.BanEntry {
	seen := make(map[string]bool, len(bans))
	var out []model.BanEntry
	for _, b := range bans {
		if b.PlayerUUID == "" || b.Created.IsZero() {
			rep.Skipped++
			s.log.Warn("skipping ban without player uuid or creation time", "player", b.PlayerUUID, "name", b.Name)
			continue
		}
		ts := b.Created.Unix()
		key := model.LedgerKey(b.PlayerUUID, ts)
		if seen[key] || ledger.Contains(b.PlayerUUID, ts) {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

// pace blocks for the configured wait or until ctx is done.
func (s *Service) pace(ctx context.Context) error {
	if s.wait <= 0 {
		return nil
	}
	t := time.NewTimer(s.wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
