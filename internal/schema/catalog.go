// Package schema owns a database directory's meta table (spec.md §6:
// "sys.dt0 — the root system table") and the open physical data files
// backing it. It implements both internal/parser.Schema, so the parser
// can resolve table/column names, and internal/engine.Catalog, so the
// query engine can resolve a vtable id to its open file and indexes —
// the single in-memory structure that lets both sides of the engine
// agree on what tables exist.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonahharris/osdb-backplane-sub001/internal/configfile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/dberr"
	"github.com/jonahharris/osdb-backplane-sub001/internal/engine"
	"github.com/jonahharris/osdb-backplane-sub001/internal/index"
	"github.com/jonahharris/osdb-backplane-sub001/internal/tablefile"
	"github.com/jonahharris/osdb-backplane-sub001/internal/types"
)

const sysFileName = "sys.dt0"

// sysVTable is the fixed vtable id every meta-log record is stamped
// with in sys.dt0.
const sysVTable types.VTable = 0

// metaPayloadCol is the single column id a meta-log record's JSON
// payload is stored under. It sits inside the reserved system column
// range (just above ColOpcode = 0x04) and well below FirstUserCol
// (0x400), so it can never collide with a real table's column ids.
const metaPayloadCol types.Col = 0x05

// firstDataVTable is the first id CreateTable assigns; 0/1 are
// reserved for sys.dt0 and its own (unused) meta table.
const firstDataVTable types.VTable = 2

// tableEntry is one live table: its schema definition plus the
// physical access the query engine scans against. Several tableEntry
// values in the same schema share one *tablefile.TableFile — vtable_t
// tags which logical table a given record belongs to (spec.md §6).
type tableEntry struct {
	schema string
	def    *types.TableDef
	access *engine.TableAccess
}

// Catalog is the live, in-memory view of every table in one database
// directory.
type Catalog struct {
	mu        sync.RWMutex
	dir       string
	dbID      byte
	blockSize int

	sys   *tablefile.TableFile
	files map[string]*tablefile.TableFile // schema name -> shared physical data file

	tables     map[types.VTable]*tableEntry
	byName     map[string]types.VTable // "schema.table" -> vtable
	nextVTable types.VTable
}

// Open loads (creating if absent) the sys.dt0 meta log at dir, replays
// it to reconstruct the current table set, and opens every schema's
// physical data file, rebuilding its indexes by replaying its records.
// blockSize only takes effect the first time dir is opened; an
// existing directory's metadata.json sidecar (internal/configfile)
// overrides it, so a database is never silently reopened at a
// different block size than it was created with.
func Open(dir string, dbID byte, blockSize int) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
	}

	meta, err := configfile.Load(dir)
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
	}
	if meta == nil {
		meta = configfile.DefaultConfig(blockSize, dbID)
		if err := meta.Save(dir); err != nil {
			return nil, dberr.Wrap(dberr.ErrCannotOpen, err)
		}
	}
	blockSize = meta.GetBlockSize(blockSize)

	sysPath := filepath.Join(dir, sysFileName)
	sys, err := openOrCreate(sysPath, dbID, blockSize)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		dir:        dir,
		dbID:       dbID,
		blockSize:  blockSize,
		sys:        sys,
		files:      make(map[string]*tablefile.TableFile),
		tables:     make(map[types.VTable]*tableEntry),
		byName:     make(map[string]types.VTable),
		nextVTable: firstDataVTable,
	}

	defs, err := c.replayMetaLog()
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.VTable+1 > c.nextVTable {
			c.nextVTable = def.VTable + 2
		}
		if err := c.attach(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func openOrCreate(path string, dbID byte, blockSize int) (*tablefile.TableFile, error) {
	tf, err := tablefile.Open(path, dbID)
	if err == nil {
		return tf, nil
	}
	if !os.IsNotExist(underlyingNotExist(err)) {
		return nil, err
	}
	return tablefile.Create(path, blockSize, dbID, 0)
}

// underlyingNotExist unwraps a dberr.Error down to the *os.PathError
// os.IsNotExist can recognize; Open's failure path otherwise only
// carries dberr.ErrCannotOpen, which would mask a genuine first-run
// "no such file" from a real corruption.
func underlyingNotExist(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		if u, ok := err.(unwrapper); ok {
			err = u.Unwrap()
			continue
		}
		return err
	}
}

// schemaFile returns the shared physical data file for schema,
// creating it on first use.
func (c *Catalog) schemaFile(sch string) (*tablefile.TableFile, error) {
	if tf, ok := c.files[sch]; ok {
		return tf, nil
	}
	path := filepath.Join(c.dir, sch+".dt0")
	tf, err := openOrCreate(path, c.dbID, c.blockSize)
	if err != nil {
		return nil, err
	}
	c.files[sch] = tf
	return tf, nil
}

// attach opens def's schema file (if needed), rebuilds its indexes,
// and registers it under both lookup maps. Caller holds no lock yet
// (used during Open, before the Catalog is shared) or already holds
// c.mu (used by the DDL paths in mutate.go).
func (c *Catalog) attach(def *types.TableDef) error {
	tf, err := c.schemaFile(def.Schema)
	if err != nil {
		return err
	}
	indexes, err := rebuildIndexes(tf, def)
	if err != nil {
		return err
	}
	entry := &tableEntry{
		schema: def.Schema,
		def:    def,
		access: &engine.TableAccess{File: tf, Indexes: indexes},
	}
	c.tables[def.VTable] = entry
	c.byName[qualify(def.Schema, def.Name)] = def.VTable
	return nil
}

// rebuildIndexes replays tf's live records for def's vtable, feeding
// every KEY/UNIQUE column's value into a fresh in-memory index
// (internal/index has no on-disk format of its own — spec.md's
// SCHEMA.oXX files are this replay's durable source, not a separate
// serialization this engine needs to maintain).
func rebuildIndexes(tf *tablefile.TableFile, def *types.TableDef) (map[types.Col]*index.Index, error) {
	indexes := make(map[types.Col]*index.Index)
	for _, cd := range def.Columns {
		if cd.IsKey() || cd.IsUnique() {
			indexes[cd.ID] = index.New(def.VTable, cd.ID)
		}
	}
	if len(indexes) == 0 {
		return indexes, nil
	}
	if err := walkLive(tf, def.VTable, func(ids []types.Col, cols []types.ColValue, off types.Off) {
		for i, id := range ids {
			if ix, ok := indexes[id]; ok && !cols[i].Null {
				ix.Update(cols[i].Bytes, off)
			}
		}
	}); err != nil {
		return nil, err
	}
	return indexes, nil
}

func qualify(sch, name string) string {
	return fmt.Sprintf("%s.%s", sch, name)
}

// LookupTable implements internal/parser.Schema.
func (c *Catalog) LookupTable(sch, name string) (*types.TableDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sch == "" {
		sch = "default"
	}
	vt, ok := c.byName[qualify(sch, name)]
	if !ok {
		return nil, false
	}
	return c.tables[vt].def, true
}

// Access implements internal/engine.Catalog.
func (c *Catalog) Access(vt types.VTable) (*engine.TableAccess, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.tables[vt]
	if !ok {
		return nil, dberr.Newf(dberr.ErrTableNotFound, "vtable %d", vt)
	}
	return entry.access, nil
}

// NextStamp allocates a fresh write/commit timestamp, discriminated by
// this database's dbID the way every physical file's own NextStamp is.
// internal/dispatch wires this into the shared internal/txn.Manager so
// every connection's Commit1 draws from one monotonic source.
func (c *Catalog) NextStamp() types.Stamp {
	return c.sys.NextStamp()
}

// SyncStamp reports the database-wide durable-commit horizon, tracked
// on sys.dt0's own metadata block the way every physical file tracks
// its own tf_SyncStamp.
func (c *Catalog) SyncStamp() types.Stamp {
	return c.sys.Header().SyncStamp
}

// AdvanceSyncStamp raises the durable-commit horizon to at least s,
// propagating it to every open physical file so a WAIT_TRAN issued
// against any one of them observes the same horizon.
func (c *Catalog) AdvanceSyncStamp(s types.Stamp) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.sys.SetSyncStamp(s); err != nil {
		return err
	}
	for _, tf := range c.files {
		if err := tf.SetSyncStamp(s); err != nil {
			return err
		}
	}
	return nil
}

// WaitForSyncStamp blocks until SyncStamp reaches at least s or five
// seconds have passed, polling at a short interval. There is no cross-process wait channel in this
// rendition (spec.md's original used a condition variable signaled by
// the writer that advances tf_SyncStamp); a bounded poll gives the
// same externally observable behavior without a new synchronization
// primitive threaded through every writer path.
func (c *Catalog) WaitForSyncStamp(s types.Stamp) {
	const pollInterval = 5 * time.Millisecond
	const maxWait = 5 * time.Second
	deadline := time.Now().Add(maxWait)
	for c.SyncStamp() < s && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
}

// WalkRawRange streams every record (any vtable, deletes included)
// stamped in [start, end) across every open schema file, for
// RAWREAD's replication wire command.
func (c *Catalog) WalkRawRange(start, end types.Stamp, visit func(raw []byte) error) error {
	c.mu.RLock()
	files := make([]*tablefile.TableFile, 0, len(c.files))
	for _, tf := range c.files {
		files = append(files, tf)
	}
	c.mu.RUnlock()

	for _, tf := range files {
		if err := walkRaw(tf, start, end, visit); err != nil {
			return err
		}
	}
	return nil
}

// AppendRaw appends one already-encoded record, received verbatim over
// a RAWWRITE stream, to its schema's physical file. The record's own
// header carries the vtable and schema it belongs to; RAWWRITE bodies
// are scoped to one schema file by the client's prior RAWWRITE
// {filename} framing at the dispatch layer, so this only needs the
// default schema file until multi-schema replication is wired deeper.
func (c *Catalog) AppendRaw(raw []byte) error {
	c.mu.RLock()
	tf, ok := c.files[defaultSchema]
	c.mu.RUnlock()
	if !ok {
		var err error
		c.mu.Lock()
		tf, err = c.schemaFile(defaultSchema)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
	_, err := tf.Append(raw)
	return err
}

// DataFilePath resolves name (as announced by a RAWDATAFILE packet) to
// the absolute path of an open physical file, for a whole-file
// replication bootstrap transfer. name matches either sys.dt0 or one
// schema's "<schema>.dt0".
func (c *Catalog) DataFilePath(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name == sysFileName {
		return c.sys.Path(), nil
	}
	for sch, tf := range c.files {
		if filepath.Base(tf.Path()) == name || sch+".dt0" == name {
			return tf.Path(), nil
		}
	}
	return "", dberr.Newf(dberr.ErrCannotOpen, "unknown data file %q", name)
}

// Close releases every open physical file, including sys.dt0.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, tf := range c.files {
		if err := tf.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := c.sys.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
