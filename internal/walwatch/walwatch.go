// Package walwatch watches a database's log directory for new or
// appended write-ahead log segments (spec.md §6: "log_NNNNNNNNN.lg0"),
// notifying the replicator path (the .drd_socket rendezvous in
// SPEC_FULL.md's DOMAIN STACK) without polling.
package walwatch

import (
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/fsnotify/fsnotify"

	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dblog"
)

var segmentName = regexp.MustCompile(`^log_(\d{9})\.lg0$`)

// EventKind distinguishes why a segment was reported.
type EventKind int

const (
	SegmentCreated EventKind = iota
	SegmentAppended
)

// Event is one observed change to a log segment file.
type Event struct {
	Kind EventKind
	Path string
	Seq  int64 // parsed from the filename, -1 if unparseable
}

// Watcher wraps fsnotify over one database directory, filtering down
// to log segment files. Each fsnotify Write event on a segment becomes
// one SegmentAppended notification; events are not collapsed.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
}

// New starts watching dir for log segment activity.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan Event, 64),
		errs:   make(chan error, 8),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				dblog.Errorf("walwatch: dropped fsnotify error (channel full): %v", err)
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	m := segmentName.FindStringSubmatch(name)
	if m == nil {
		return
	}
	seq, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		seq = -1
	}

	var kind EventKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = SegmentCreated
	case ev.Has(fsnotify.Write):
		kind = SegmentAppended
	default:
		return
	}

	select {
	case w.events <- Event{Kind: kind, Path: ev.Name, Seq: seq}:
	default:
		dblog.Errorf("walwatch: dropped event for %s (channel full)", ev.Name)
	}
}

// Events returns the channel of segment notifications.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of underlying fsnotify errors.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
