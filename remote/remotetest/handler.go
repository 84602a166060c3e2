package remotetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/collapsinghierarchy/repsync/message"
	pgp "github.com/collapsinghierarchy/repsync/pkc/pgp"
	"github.com/collapsinghierarchy/repsync/remote"
)

const maxBody = 64 * 1024

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req remote.RegisterRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	keys, err := pgp.ReadPublicKeys(req.PublicKey)
	if err != nil {
		reject(w, "invalid public key")
		return
	}
	text, signer, err := pgp.Verify(keys, []byte(req.Message))
	if err != nil {
		reject(w, "bad signature")
		return
	}
	msg, err := message.Parse(text)
	if err != nil {
		reject(w, err.Error())
		return
	}
	if name, _ := msg.Get(message.FieldName); name == "" {
		reject(w, "missing name")
		return
	}

	fp := fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[fp]; ok {
		reject(w, "key already registered")
		return
	}
	id := uuid.NewString()
	s.servers[fp] = id
	s.keys = append(s.keys, keys...)
	accept(w, id)
}

func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.verified(w, r)
	if !ok {
		return
	}
	for _, f := range []string{message.FieldUUID, message.FieldTimestamp, message.FieldPlayerUUID, message.FieldPoints} {
		if v, _ := msg.Get(f); v == "" {
			reject(w, "missing "+f)
			return
		}
	}
	pts, _ := msg.Get(message.FieldPoints)
	if p, err := strconv.ParseFloat(pts, 64); err != nil || p < -1 || p > 1 {
		reject(w, "invalid points")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject != nil {
		if reason := s.reject(msg); reason != "" {
			reject(w, reason)
			return
		}
	}
	id := uuid.NewString()
	s.submissions = append(s.submissions, Received{RemoteID: id, Fields: msg})
	accept(w, id)
}

func (s *Server) Revoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msg, ok := s.verified(w, r)
	if !ok {
		return
	}
	if v, _ := msg.Get(message.FieldTimestamp); v == "" {
		reject(w, "missing timestamp")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.submissions {
		if sub.RemoteID == id {
			s.revoked = append(s.revoked, id)
			writeJSON(w, http.StatusOK, map[string]any{"status": true})
			return
		}
	}
	reject(w, "unknown submission")
}

// verified reads a cleartext-signed body and checks it against known keys.
func (s *Server) verified(w http.ResponseWriter, r *http.Request) (message.Message, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	s.mu.Lock()
	keys := s.keys
	s.mu.Unlock()

	text, _, err := pgp.Verify(keys, body)
	if err != nil {
		reject(w, "unknown signer")
		return nil, false
	}
	msg, err := message.Parse(text)
	if err != nil {
		reject(w, err.Error())
		return nil, false
	}
	return msg, true
}

func accept(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusOK, remote.Response{Status: ptr(true), UUID: id})
}

func reject(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusOK, remote.Response{Status: ptr(false), Error: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ptr[T any](v T) *T { return &v }
