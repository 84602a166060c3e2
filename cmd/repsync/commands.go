package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/collapsinghierarchy/repsync/banlist"
	"github.com/collapsinghierarchy/repsync/config"
	pgp "github.com/collapsinghierarchy/repsync/pkc/pgp"
	"github.com/collapsinghierarchy/repsync/remote"
	"github.com/collapsinghierarchy/repsync/service"
	"github.com/collapsinghierarchy/repsync/store"
	"github.com/collapsinghierarchy/repsync/store/jsonfile"
	"github.com/collapsinghierarchy/repsync/store/postgres"
	"github.com/collapsinghierarchy/repsync/store/sqlite"
)

type app struct {
	cfg    *config.Config
	log    *slog.Logger
	stdout io.Writer
}

var commands = map[string]func(context.Context, *app, []string) error{
	"init":     cmdInit,
	"register": cmdRegister,
	"sync":     cmdSync,
	"manual":   cmdManual,
	"revoke":   cmdRevoke,
	"pubkey":   cmdPubkey,
	"status":   cmdStatus,
}

func cmdInit(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "overwrite existing keys")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() > 1 {
		return usagef("expected at most one algorithm (ecc or rsa)")
	}
	algo, err := pgp.ParseAlgorithm(fs.Arg(0))
	if err != nil {
		return usagef("%v", err)
	}

	// ledger first: a failing backend must not leave keys behind
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		return err
	}

	kr, err := pgp.Generate(algo, userIDs(a.cfg))
	if err != nil {
		return err
	}
	if err := kr.Save(a.cfg.Paths.PrivateKey, a.cfg.Paths.PublicKey, a.cfg.Passphrase, *force); err != nil {
		return err
	}
	a.log.Info("key pair written", "algo", algo, "fingerprint", kr.Fingerprint(),
		"private", a.cfg.Paths.PrivateKey, "public", a.cfg.Paths.PublicKey)
	fmt.Fprintln(a.stdout, kr.Fingerprint())
	return nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	force := fs.Bool("force", false, "register again even if a server id exists")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() != 0 {
		return usagef("unexpected arguments")
	}
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	reg, err := svc.Register(ctx, *force)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, reg.ServerUUID)
	return nil
}

func cmdSync(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usagef("unexpected arguments")
	}
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := svc.Sync(ctx)
	fmt.Fprintf(a.stdout, "bans=%d pending=%d submitted=%d rejected=%d skipped=%d\n",
		rep.Total, rep.Pending, rep.Submitted, rep.Rejected, rep.Skipped)
	if err != nil {
		return err
	}
	return rep.Err()
}

func cmdManual(ctx context.Context, a *app, args []string) error {
	if len(args) < 3 {
		return usagef("usage: manual <player> <points> <comment>")
	}
	points, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return usagef("points %q is not a number", args[1])
	}
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	sub, remoteID, err := svc.Manual(ctx, args[0], points, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s %s\n", sub.ID, remoteID)
	return nil
}

func cmdRevoke(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return usagef("usage: revoke <submission> <comment>")
	}
	svc, closeFn, err := a.service(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return svc.Revoke(ctx, args[0], strings.Join(args[1:], " "))
}

func cmdPubkey(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usagef("unexpected arguments")
	}
	kr, err := pgp.Load(a.cfg.Paths.PrivateKey, a.cfg.Passphrase)
	if err != nil {
		return err
	}
	pub, err := kr.PublicKey()
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, pub)
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return usagef("unexpected arguments")
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	svc := service.New(nil, nil, nil, st, service.Options{ServerIDPath: a.cfg.Paths.ServerID, Logger: a.log})

	s, err := svc.Status(ctx)
	if err != nil {
		return err
	}
	server := s.ServerID
	if server == "" {
		server = "(not registered)"
	}
	key := "(none)"
	if kr, err := pgp.Load(a.cfg.Paths.PrivateKey, a.cfg.Passphrase); err == nil {
		key = kr.Fingerprint()
	} else {
		a.log.Debug("no usable key", "err", err)
	}
	fmt.Fprintf(a.stdout, "server:  %s\nledger:  %d entries (%s)\nkey:     %s\n",
		server, s.LedgerEntries, a.cfg.Ledger.Backend, key)
	return nil
}

// service assembles the keyring, remote client, ban list and ledger backend.
func (a *app) service(ctx context.Context) (*service.Service, func(), error) {
	if err := a.cfg.RequireEndpoint(); err != nil {
		return nil, nil, err
	}
	kr, err := pgp.Load(a.cfg.Paths.PrivateKey, a.cfg.Passphrase)
	if err != nil {
		return nil, nil, err
	}
	tr, err := remote.NewHTTPTransport(a.cfg.Endpoint, a.cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(kr, remote.NewClient(tr), banlist.NewFile(a.cfg.Paths.BanList), st, service.Options{
		Wait:         a.cfg.Wait,
		ServerName:   a.cfg.RegistrationName(),
		ServerIDPath: a.cfg.Paths.ServerID,
		Logger:       a.log,
	})
	return svc, func() { st.Close() }, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.Ledger.Backend {
	case config.BackendSQLite:
		return sqlite.Open(a.cfg.Ledger.DSN)
	case config.BackendPostgres:
		return postgres.Connect(ctx, a.cfg.Ledger.DSN)
	default:
		return jsonfile.NewStore(a.cfg.Paths.Ledger), nil
	}
}

func userIDs(cfg *config.Config) []pgp.UserID {
	ids := make([]pgp.UserID, 0, len(cfg.UserIDs))
	for _, u := range cfg.UserIDs {
		ids = append(ids, pgp.UserID{Name: u.Name, Comment: u.Comment, Email: u.Email})
	}
	return ids
}
