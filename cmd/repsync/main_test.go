package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collapsinghierarchy/repsync/remote/remotetest"
)

const banList = `[
  {"uuid": "A", "name": "alice", "created": "2024-01-01 00:00:00 +0000", "source": "Server", "expires": "forever", "reason": "cheating"},
  {"uuid": "B", "name": "bob", "created": "not a date", "source": "Server", "expires": "forever", "reason": "spam"}
]`

type cli struct {
	t      *testing.T
	config string
	dir    string
}

func newCLI(t *testing.T, endpoint string, extra ...string) *cli {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`endpoint: %s
wait: 0s
server_name: lobby
user_ids:
  - name: lobby
    email: ops@example.org
paths:
  private_key: %[2]s/private.key
  public_key: %[2]s/public.key
  ban_list: %[2]s/banned-players.json
  ledger: %[2]s/submitted.json
  server_id: %[2]s/server.uuid
`, endpoint, dir) + strings.Join(extra, "")
	path := filepath.Join(dir, "repsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "banned-players.json"), []byte(banList), 0o644))
	return &cli{t: t, config: path, dir: dir}
}

func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-config", c.config}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_EndToEnd(t *testing.T) {
	srv := remotetest.New()
	ts := remotetest.Start(t, srv)
	c := newCLI(t, ts.URL)

	code, out, errOut := c.run("init")
	require.Equal(t, exitOK, code, errOut)
	fingerprint := strings.TrimSpace(out)
	require.NotEmpty(t, fingerprint)
	require.FileExists(t, filepath.Join(c.dir, "private.key"))
	require.FileExists(t, filepath.Join(c.dir, "submitted.json"))

	// keys are not overwritten without -force
	code, _, errOut = c.run("init")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "configuration")

	code, out, errOut = c.run("register")
	require.Equal(t, exitOK, code, errOut)
	serverID := strings.TrimSpace(out)
	require.NotEmpty(t, serverID)

	code, out, errOut = c.run("sync")
	require.Equal(t, exitOK, code, errOut)
	require.Equal(t, "bans=2 pending=1 submitted=1 rejected=0 skipped=1\n", out)
	require.Len(t, srv.Submissions(), 1)

	code, out, _ = c.run("sync")
	require.Equal(t, exitOK, code)
	require.Contains(t, out, "submitted=0")
	require.Len(t, srv.Submissions(), 1)

	code, out, errOut = c.run("status")
	require.Equal(t, exitOK, code, errOut)
	require.Contains(t, out, serverID)
	require.Contains(t, out, "1 entries")
	require.Contains(t, out, fingerprint)

	code, out, errOut = c.run("pubkey")
	require.Equal(t, exitOK, code, errOut)
	require.Contains(t, out, "BEGIN PGP PUBLIC KEY BLOCK")

	code, out, errOut = c.run("manual", "C", "-0.5", "toxic", "chat")
	require.Equal(t, exitOK, code, errOut)
	ids := strings.Fields(out)
	require.Len(t, ids, 2)
	require.Len(t, srv.Submissions(), 2)

	code, _, errOut = c.run("revoke", ids[1], "wrong", "player")
	require.Equal(t, exitOK, code, errOut)
	require.Equal(t, []string{ids[1]}, srv.Revoked())
}

func TestCLI_Errors(t *testing.T) {
	srv := remotetest.New()
	ts := remotetest.Start(t, srv)
	c := newCLI(t, ts.URL)

	code, _, _ := c.run()
	require.Equal(t, exitUsage, code)

	code, _, errOut := c.run("frobnicate")
	require.Equal(t, exitUsage, code)
	require.Contains(t, errOut, "unknown command")

	code, _, _ = c.run("init", "dsa")
	require.Equal(t, exitUsage, code)

	code, _, _ = c.run("manual", "A", "lots", "comment")
	require.Equal(t, exitUsage, code)

	// sync before init: no key
	code, _, errOut = c.run("sync")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "sync failed (configuration)")

	code, _, errOut = c.run("init", "rsa")
	require.Equal(t, exitOK, code, errOut)

	code, _, errOut = c.run("manual", "A", "0", "nothing")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "manual failed (validation)")

	code, _, errOut = c.run("revoke", "not-a-uuid", "oops")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "validation")
	require.Empty(t, srv.Requests())

	// unregistered key: the service refuses every submission
	code, out, errOut := c.run("sync")
	require.Equal(t, exitError, code)
	require.Contains(t, out, "rejected=1")
	require.Contains(t, errOut, "sync failed (rejected)")

	code, _, errOut = c.run("-config", filepath.Join(c.dir, "missing.yaml"), "status")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "configuration")
}

func TestCLI_InitLedgerFailureLeavesNoKeys(t *testing.T) {
	c := newCLI(t, "https://rep.example.org")
	// the ledger directory is a regular file, so the ledger cannot be created
	blocker := filepath.Join(c.dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg, err := os.ReadFile(c.config)
	require.NoError(t, err)
	cfg = []byte(strings.Replace(string(cfg), c.dir+"/submitted.json", blocker+"/submitted.json", 1))
	require.NoError(t, os.WriteFile(c.config, cfg, 0o600))

	code, _, errOut := c.run("init")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "init failed (storage)")
	require.NoFileExists(t, filepath.Join(c.dir, "private.key"))
	require.NoFileExists(t, filepath.Join(c.dir, "public.key"))
}

func TestCLI_SQLiteLedgerDefaultFile(t *testing.T) {
	c := newCLI(t, "https://rep.example.org", "ledger:\n  backend: sqlite\n")
	t.Chdir(c.dir)

	code, _, errOut := c.run("init")
	require.Equal(t, exitOK, code, errOut)
	require.FileExists(t, filepath.Join(c.dir, "submitted.db"))
	require.NoFileExists(t, filepath.Join(c.dir, "submitted.json"))

	code, out, errOut := c.run("status")
	require.Equal(t, exitOK, code, errOut)
	require.Contains(t, out, "0 entries (sqlite)")
}
