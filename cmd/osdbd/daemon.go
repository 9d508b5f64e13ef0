package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/jonahharris/osdb-backplane-sub001/internal/config"
	"github.com/jonahharris/osdb-backplane-sub001/internal/daemonlock"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dblog"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dispatch"
	"github.com/jonahharris/osdb-backplane-sub001/internal/schema"
)

// parseLogLevel maps the --log-level flag to a dblog.Level, defaulting
// to LowPri (info) for anything unrecognized.
func parseLogLevel(s string) dblog.Level {
	switch s {
	case "debug":
		return dblog.Debug
	case "warn", "error":
		return dblog.HighPri
	default:
		return dblog.LowPri
	}
}

// runDaemonLoop is the foreground body of 'osdbd start': it acquires
// the daemon lock, opens the catalog, and serves the control socket
// until a signal or a fatal error tells it to stop. Always run via
// return rather than os.Exit past the lock being taken, so every defer
// (lock release, catalog close, socket cleanup) actually runs.
func runDaemonLoop() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	dblog.SetLevel(parseLogLevel(logLevel))
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		dblog.SetOutput(f)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pidPath := resolvePIDFilePath()
	lock, err := daemonlock.Acquire(pidPath)
	if err != nil {
		if err == daemonlock.ErrAlreadyHeld {
			dblog.Infof("osdbd: daemon already running (lock held), exiting")
		} else {
			dblog.Errorf("osdbd: acquiring daemon lock: %v", err)
		}
		return
	}
	defer lock.Release()

	defer func() {
		if r := recover(); r != nil {
			dblog.Errorf("osdbd: daemon crashed: %v\n%s", r, debug.Stack())
		}
	}()

	cat, err := schema.Open(dbDir, byte(dbID), config.BlockSize())
	if err != nil {
		dblog.Errorf("osdbd: cannot open database %q: %v", dbDir, err)
		return
	}
	defer func() { _ = cat.Close() }()

	name := resolveDBName()
	srv := dispatch.NewServer(name, cat)

	sock := resolveSocketPath()
	_ = os.Remove(sock) // clear a stale socket left by an unclean shutdown
	defer func() { _ = os.Remove(sock) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(sock) }()

	dblog.Infof("osdbd: serving %q on %s (PID %d)", name, sock, os.Getpid())

	select {
	case <-ctx.Done():
		dblog.Infof("osdbd: shutting down")
		_ = srv.Close()
	case err := <-serveErr:
		if err != nil {
			dblog.Errorf("osdbd: listener stopped: %v", err)
		}
	}
}
