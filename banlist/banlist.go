// Package banlist reads the server's banned-players.json.
package banlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/collapsinghierarchy/repsync/model"
)

// createdLayouts are tried in order. The first is what the vanilla server
// writes, e.g. "2019-06-13 19:51:24 +0200".
var createdLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

type rawEntry struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Created string `json:"created"`
	Source  string `json:"source"`
	Expires string `json:"expires"`
	Reason  string `json:"reason"`
}

// File is a ban list on disk, read fresh on every Load.
type File struct {
	Path string
}

func NewFile(path string) *File { return &File{Path: path} }

// Load returns the entries in file order. An entry whose creation time cannot
// be parsed keeps a zero Created; the caller decides what to do with it.
func (f *File) Load(ctx context.Context) ([]model.BanEntry, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: ban list %s not found", model.ErrStorage, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ban list: %v", model.ErrStorage, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]model.BanEntry, error) {
	var raw []rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode ban list: %v", model.ErrStorage, err)
	}
	out := make([]model.BanEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.BanEntry{
			PlayerUUID: strings.TrimSpace(r.UUID),
			Name:       r.Name,
			Created:    ParseCreated(r.Created),
			Source:     r.Source,
			Expires:    r.Expires,
			Reason:     r.Reason,
		})
	}
	return out, nil
}

// ParseCreated returns the zero time when s matches none of the known layouts.
func ParseCreated(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
