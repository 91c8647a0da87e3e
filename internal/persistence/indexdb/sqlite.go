package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"kashimo.ai/internal/sim/catalogs"
	"kashimo.ai/internal/sim/farm"
	"kashimo.ai/internal/sim/mathx"
	"kashimo.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable history of what the farmer saw and decided. It is a
// side channel: writes are queued and dropped when the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropChange   atomic.Uint64
	dropScan     atomic.Uint64
	dropDecision atomic.Uint64
}

type reqKind int

const (
	reqChange reqKind = iota + 1
	reqScan
	reqDecision
)

type req struct {
	kind reqKind
	at   string

	change   farm.Change
	scan     farm.ScanResult
	decision decisionRow
}

type decisionRow struct {
	Ref    mathx.Vec3f
	Target mathx.Vec3
	Found  bool
	Crops  int
	Ripe   int
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropChangeTotal   uint64
	DropScanTotal     uint64
	DropDecisionTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS crop_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			species INTEGER NOT NULL,
			anchor_x INTEGER NOT NULL,
			anchor_y INTEGER NOT NULL,
			anchor_z INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_crop_changes_pos ON crop_changes(x, z, y);`,
		`CREATE INDEX IF NOT EXISTS idx_crop_changes_kind ON crop_changes(kind, id);`,
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			chunk_x INTEGER NOT NULL,
			chunk_y INTEGER NOT NULL,
			chunk_z INTEGER NOT NULL,
			fed INTEGER NOT NULL,
			pruned INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scans_chunk ON scans(chunk_x, chunk_z, chunk_y);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			ref_x REAL NOT NULL,
			ref_y REAL NOT NULL,
			ref_z REAL NOT NULL,
			found INTEGER NOT NULL,
			x INTEGER,
			y INTEGER,
			z INTEGER,
			crops INTEGER NOT NULL,
			ripe INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropChangeTotal:   s.dropChange.Load(),
		DropScanTotal:     s.dropScan.Load(),
		DropDecisionTotal: s.dropDecision.Load(),
	}
}

// CropChanged implements farm.Observer.
func (s *SQLiteIndex) CropChanged(c farm.Change) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqChange, at: now(), change: c}:
	default:
		// Drop if the indexer falls behind; the feed log remains the source of truth.
		s.dropChange.Add(1)
	}
}

func (s *SQLiteIndex) RecordScan(res farm.ScanResult) {
	if s == nil || s.closed.Load() || res.Missing || res.Already {
		return
	}
	select {
	case s.ch <- req{kind: reqScan, at: now(), scan: res}:
	default:
		s.dropScan.Add(1)
	}
}

func (s *SQLiteIndex) RecordDecision(ref mathx.Vec3f, target mathx.Vec3, found bool, crops, ripe int) {
	if s == nil || s.closed.Load() {
		return
	}
	r := decisionRow{Ref: ref, Target: target, Found: found, Crops: crops, Ripe: ripe}
	select {
	case s.ch <- req{kind: reqDecision, at: now(), decision: r}:
	default:
		s.dropDecision.Add(1)
	}
}

// UpsertCatalogs stores the catalogs and tuning the farmer runs with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, err := catalogs.MarshalCrops(cats.Crops); err == nil {
		rows = append(rows, kv{name: "crops", digest: cats.Crops.Digest, json: b})
	}
	if b, err := json.Marshal(cats.Blocks.States); err == nil {
		rows = append(rows, kv{name: "block_palette", digest: cats.Blocks.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	at := now()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertChange, _ := s.db.Prepare(`INSERT INTO crop_changes(at,kind,species,anchor_x,anchor_y,anchor_z,x,y,z) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertScan, _ := s.db.Prepare(`INSERT INTO scans(at,chunk_x,chunk_y,chunk_z,fed,pruned,skipped) VALUES(?,?,?,?,?,?,?)`)
	insertDecision, _ := s.db.Prepare(`INSERT INTO decisions(at,ref_x,ref_y,ref_z,found,x,y,z,crops,ripe) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertChange, insertScan, insertDecision} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqChange:
			c := r.change
			exec(insertChange, r.at, c.Kind.String(), int(c.Species),
				c.Anchor.X, c.Anchor.Y, c.Anchor.Z, c.Pos.X, c.Pos.Y, c.Pos.Z)
		case reqScan:
			sc := r.scan
			exec(insertScan, r.at, sc.Key.X, sc.Key.Y, sc.Key.Z, sc.Fed, sc.Pruned, boolInt(sc.Skipped))
		case reqDecision:
			d := r.decision
			var x, y, z any
			if d.Found {
				x, y, z = d.Target.X, d.Target.Y, d.Target.Z
			}
			exec(insertDecision, r.at, d.Ref.X, d.Ref.Y, d.Ref.Z, boolInt(d.Found), x, y, z, d.Crops, d.Ripe)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}
	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
