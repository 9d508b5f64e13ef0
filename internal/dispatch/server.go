package dispatch

import (
	"net"
	"runtime/debug"

	"github.com/jonahharris/osdb-backplane-sub001/internal/config"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dblog"
	"github.com/jonahharris/osdb-backplane-sub001/internal/engine"
	"github.com/jonahharris/osdb-backplane-sub001/internal/schema"
	"github.com/jonahharris/osdb-backplane-sub001/internal/txn"
)

// Server accepts control connections on a unix-domain socket and spawns
// one goroutine per client, each recovering its own panics the way
// cmd/bd's daemon loop recovers and logs a crashing goroutine rather
// than bringing down the whole process.
type Server struct {
	name string
	cat  *schema.Catalog
	exec *engine.Executor
	mgr  *txn.Manager
	ln   net.Listener

	// ResultSortThreshold bounds how many rows a RUN_QUERY_TRAN with an
	// ORDER BY clause buffers and sorts server-side before streaming;
	// above it, rows stream in scan order and RESULT_ORDER tells the
	// client how to finish the sort itself (spec.md §9).
	ResultSortThreshold int
}

// NewServer builds a dispatcher over an already-open catalog. name is
// the database name HELLO negotiates against.
func NewServer(name string, cat *schema.Catalog) *Server {
	exec := engine.NewExecutor(cat)
	mgr := txn.NewManager(cat.NextStamp)
	return &Server{name: name, cat: cat, exec: exec, mgr: mgr, ResultSortThreshold: config.ResultSortThreshold()}
}

// ListenAndServe binds socketPath and accepts connections until Close
// is called or a non-temporary accept error occurs.
func (s *Server) ListenAndServe(socketPath string) error {
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	s.ln = ln
	dblog.Infof("dispatch: listening on %s", socketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.serveControl(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// recoverAndLog is deferred at the top of every per-connection
// goroutine, mirroring cmd/bd's daemon panic guard: log the panic and
// its stack, then let the goroutine exit instead of crashing the
// process.
func recoverAndLog(label string) {
	if r := recover(); r != nil {
		dblog.Errorf("dispatch: %s panicked: %v\n%s", label, r, debug.Stack())
	}
}
