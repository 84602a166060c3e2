// Package remotetest provides an in-process reputation service for tests.
// It verifies cleartext signatures against registered keys, assigns uuids,
// and records everything it accepted.
package remotetest

import (
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/collapsinghierarchy/repsync/message"
	pgp "github.com/collapsinghierarchy/repsync/pkc/pgp"
)

// Received is a submission accepted by the fake service.
type Received struct {
	RemoteID string
	Fields   message.Message
}

type Server struct {
	mu          sync.Mutex
	keys        openpgp.EntityList
	servers     map[string]string // fingerprint -> server uuid
	submissions []Received
	revoked     []string
	requests    []string

	reject func(message.Message) string
	fail   func(*http.Request) int
}

func New() *Server {
	return &Server{servers: make(map[string]string)}
}

// Start serves s on a local httptest server closed at test cleanup.
func Start(tb interface{ Cleanup(func()) }, s *Server) *httptest.Server {
	ts := httptest.NewServer(s.Handler())
	tb.Cleanup(ts.Close)
	return ts
}

// Trust registers an armored public key without a registration round trip.
func (s *Server) Trust(armored string) error {
	el, err := pgp.ReadPublicKeys(armored)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.keys = append(s.keys, el...)
	s.mu.Unlock()
	return nil
}

// SetReject installs a hook; a non-empty return rejects the submission with
// that reason.
func (s *Server) SetReject(fn func(message.Message) string) {
	s.mu.Lock()
	s.reject = fn
	s.mu.Unlock()
}

// SetFail installs a hook; a non-zero return is sent as the HTTP status.
func (s *Server) SetFail(fn func(*http.Request) int) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

func (s *Server) Submissions() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.submissions...)
}

func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

// Requests lists "METHOD /path" for every request seen, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}
