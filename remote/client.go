package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

const (
	PathRegister = "/v1/server/register"
	PathSubmit   = "/v1/submit/new"
	PathRevoke   = "/v1/submit/uuid/"
)

// RegisterRequest is the JSON body of a registration.
type RegisterRequest struct {
	Message   string `json:"message"`
	PublicKey string `json:"publicKey"`
}

// Response is the envelope every endpoint answers with.
type Response struct {
	Status  *bool  `json:"status"`
	UUID    string `json:"uuid,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client speaks the reputation service API over a Transport.
type Client struct {
	t Transport
}

func NewClient(t Transport) *Client { return &Client{t: t} }

// Register submits the signed registration message with the armored public
// key and returns the server uuid assigned by the service.
func (c *Client) Register(ctx context.Context, signed, publicKey string) (string, error) {
	const op = "register"
	body, err := json.Marshal(RegisterRequest{Message: signed, PublicKey: publicKey})
	if err != nil {
		return "", fmt.Errorf("%s: marshal: %w", op, err)
	}
	h := http.Header{"Content-Type": {"application/json"}}
	raw, err := c.t.Do(ctx, http.MethodPut, PathRegister, h, body)
	if err != nil {
		return "", err
	}
	return parse(op, raw, true)
}

// Submit sends a signed submission and returns the remote submission id.
func (c *Client) Submit(ctx context.Context, signed string) (string, error) {
	const op = "submit"
	h := http.Header{"Content-Type": {"text/plain; charset=utf-8"}}
	raw, err := c.t.Do(ctx, http.MethodPut, PathSubmit, h, []byte(signed))
	if err != nil {
		return "", err
	}
	return parse(op, raw, true)
}

// Revoke withdraws the submission id with a signed revocation message.
func (c *Client) Revoke(ctx context.Context, id uuid.UUID, signed string) error {
	const op = "revoke"
	h := http.Header{"Content-Type": {"text/plain; charset=utf-8"}}
	raw, err := c.t.Do(ctx, http.MethodDelete, PathRevoke+id.String(), h, []byte(signed))
	if err != nil {
		return err
	}
	_, err = parse(op, raw, false)
	return err
}

// parse decodes the envelope. needID requires a non-empty uuid on success.
func parse(op string, raw []byte, needID bool) (string, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if r.Status == nil {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("malformed response: missing status")}
	}
	if !*r.Status {
		reason := r.Error
		if reason == "" {
			reason = r.Message
		}
		return "", &RejectionError{Op: op, Reason: reason}
	}
	if needID && r.UUID == "" {
		return "", &NetworkError{Op: op, Err: fmt.Errorf("malformed response: missing uuid")}
	}
	return r.UUID, nil
}
