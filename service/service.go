package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collapsinghierarchy/repsync/message"
	"github.com/collapsinghierarchy/repsync/model"
	"github.com/collapsinghierarchy/repsync/store"
)

var (
	ErrAlreadyRegistered = fmt.Errorf("%w: server already registered (use -force to register again)", model.ErrConfiguration)
	ErrNotRegistered     = fmt.Errorf("%w: server is not registered", model.ErrConfiguration)
)

// Signer produces cleartext signatures with the operator's key.
type Signer interface {
	ClearSign(text string) (string, error)
	PublicKey() (string, error)
}

// API is the remote reputation service. *remote.Client implements it.
type API interface {
	Register(ctx context.Context, signed, publicKey string) (string, error)
	Submit(ctx context.Context, signed string) (string, error)
	Revoke(ctx context.Context, id uuid.UUID, signed string) error
}

// BanSource yields the local ban list. *banlist.File implements it.
type BanSource interface {
	Load(ctx context.Context) ([]model.BanEntry, error)
}

type Options struct {
	Wait         time.Duration // pause after each submission
	ServerName   string
	ServerIDPath string
	Logger       *slog.Logger

	// Overridable for tests.
	Now   func() time.Time
	NewID func() uuid.UUID
}

type Service struct {
	Signer Signer
	API    API
	Bans   BanSource
	Store  store.Store // ledger backend

	wait         time.Duration
	serverName   string
	serverIDPath string
	log          *slog.Logger
	now          func() time.Time
	newID        func() uuid.UUID
}

func New(signer Signer, api API, bans BanSource, st store.Store, opts Options) *Service {
	s := &Service{
		Signer:       signer,
		API:          api,
		Bans:         bans,
		Store:        st,
		wait:         opts.Wait,
		serverName:   opts.ServerName,
		serverIDPath: opts.ServerIDPath,
		log:          opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	return s
}

// ServerID returns the persisted registration id, or "" when the server has
// not been registered yet.
func (s *Service) ServerID() (string, error) {
	if s.serverIDPath == "" {
		return "", fmt.Errorf("%w: no server id path configured", model.ErrConfiguration)
	}
	data, err := os.ReadFile(s.serverIDPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read server id: %v", model.ErrStorage, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Register signs the server name, registers the public key and stores the
// returned server uuid.
func (s *Service) Register(ctx context.Context, force bool) (model.Registration, error) {
	existing, err := s.ServerID()
	if err != nil {
		return model.Registration{}, fmt.Errorf("register: %w", err)
	}
	if existing != "" && !force {
		return model.Registration{ServerUUID: existing}, fmt.Errorf("register: %w", ErrAlreadyRegistered)
	}
	if strings.TrimSpace(s.serverName) == "" {
		return model.Registration{}, fmt.Errorf("register: %w: server name is empty", model.ErrConfiguration)
	}

	signed, err := s.Signer.ClearSign(message.ForRegistration(s.serverName).Encode())
	if err != nil {
		return model.Registration{}, fmt.Errorf("register: sign: %w", err)
	}
	pub, err := s.Signer.PublicKey()
	if err != nil {
		return model.Registration{}, fmt.Errorf("register: public key: %w", err)
	}
	id, err := s.API.Register(ctx, signed, pub)
	if err != nil {
		return model.Registration{}, fmt.Errorf("register: %w", err)
	}
	if err := store.WriteFileAtomic(s.serverIDPath, []byte(id+"\n"), 0o644); err != nil {
		return model.Registration{}, fmt.Errorf("register: %w: save server id %s: %v", model.ErrStorage, id, err)
	}
	s.log.Info("server registered", "server_uuid", id, "name", s.serverName)
	return model.Registration{ServerUUID: id}, nil
}

// Manual submits an operator-supplied report. Points are validated before
// anything is signed or sent. The ledger is not touched.
func (s *Service) Manual(ctx context.Context, playerUUID string, points float64, comment string) (model.Submission, string, error) {
	sub, err := model.NewManualSubmission(playerUUID, points, comment, s.now(), s.newID())
	if err != nil {
		return model.Submission{}, "", fmt.Errorf("manual: %w", err)
	}
	signed, err := s.Signer.ClearSign(message.ForSubmission(sub).Encode())
	if err != nil {
		return sub, "", fmt.Errorf("manual: sign: %w", err)
	}
	remoteID, err := s.API.Submit(ctx, signed)
	if err != nil {
		return sub, "", fmt.Errorf("manual: %w", err)
	}
	s.log.Info("manual submission accepted",
		"player", sub.PlayerUUID, "points", sub.Points, "local", sub.ID, "remote", remoteID)
	return sub, remoteID, nil
}

// Revoke asks the service to withdraw a previous submission. Local state is
// left as is.
func (s *Service) Revoke(ctx context.Context, submissionID, comment string) error {
	id, err := uuid.Parse(strings.TrimSpace(submissionID))
	if err != nil {
		return fmt.Errorf("revoke: %w: submission id %q: %v", model.ErrValidation, submissionID, err)
	}
	signed, err := s.Signer.ClearSign(message.ForRevocation(s.now().Unix(), comment).Encode())
	if err != nil {
		return fmt.Errorf("revoke: sign: %w", err)
	}
	if err := s.API.Revoke(ctx, id, signed); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	s.log.Info("submission revoked", "remote", id)
	return nil
}

type Status struct {
	ServerID      string
	LedgerEntries int
}

// Status reports registration and ledger size without contacting the service.
func (s *Service) Status(ctx context.Context) (Status, error) {
	id, err := s.ServerID()
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	l, err := store.Open(ctx, s.Store)
	if err != nil {
		return Status{ServerID: id}, fmt.Errorf("status: %w", err)
	}
	return Status{ServerID: id, LedgerEntries: l.Len()}, nil
}
