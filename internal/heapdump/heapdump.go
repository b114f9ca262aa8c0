// Package heapdump writes heap snapshots to a SQL database: every live
// record, whether it is reachable from a root set, and the references
// between records. The schema works with the sqlite and mysql drivers.
package heapdump

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funvibe/rol/internal/gc"
	"github.com/funvibe/rol/internal/heap"
	"github.com/funvibe/rol/internal/value"
)

// ErrNotFound is returned for an unknown snapshot id.
var ErrNotFound = errors.New("snapshot not found")

// summaryLimit caps the text stored for string records.
const summaryLimit = 64

var schema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id VARCHAR(36) PRIMARY KEY,
		label VARCHAR(255) NOT NULL,
		taken_at BIGINT NOT NULL,
		records INTEGER NOT NULL,
		reachable INTEGER NOT NULL,
		bytes BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		snapshot_id VARCHAR(36) NOT NULL,
		handle BIGINT NOT NULL,
		kind VARCHAR(32) NOT NULL,
		size INTEGER NOT NULL,
		reachable INTEGER NOT NULL,
		summary TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, handle)
	)`,
	`CREATE TABLE IF NOT EXISTS edges (
		snapshot_id VARCHAR(36) NOT NULL,
		parent BIGINT NOT NULL,
		child BIGINT NOT NULL
	)`,
}

// Snapshot is one row of the snapshots table.
type Snapshot struct {
	ID        string
	Label     string
	TakenAt   time.Time
	Records   int
	Reachable int
	Bytes     int
}

// Record is one row of the records table.
type Record struct {
	Handle    value.Handle
	Kind      string
	Size      int
	Reachable bool
	Summary   string
}

// Edge is a reference from Parent's record to Child's.
type Edge struct {
	Parent, Child value.Handle
}

// Open connects to dsn with driver ("sqlite" or "mysql") and creates the
// tables when missing.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the snapshot tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Write records every live record of h in one transaction.
func Write(ctx context.Context, db *sql.DB, h *heap.Heap, roots gc.RootSet, label string) (Snapshot, error) {
	reachable := gc.Reachable(h, roots)
	snap := Snapshot{ID: uuid.NewString(), Label: label, TakenAt: time.Now().UTC()}

	var records []Record
	var edges []Edge
	h.Each(func(hd value.Handle, rec heap.Record) {
		_, live := reachable[hd]
		records = append(records, Record{
			Handle:    hd,
			Kind:      rec.Kind().String(),
			Size:      rec.SizeBytes(),
			Reachable: live,
			Summary:   summarize(rec),
		})
		rec.TraceChildren(func(v value.Var) {
			if child, ok := v.AsHandle(); ok && gc.NeedsTracing(v) {
				edges = append(edges, Edge{Parent: hd, Child: child})
			}
		})
		snap.Records++
		snap.Bytes += rec.SizeBytes()
		if live {
			snap.Reachable++
		}
	})

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot: %w", err)
	}
	if err := insert(ctx, tx, snap, records, edges); err != nil {
		tx.Rollback()
		return Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

func insert(ctx context.Context, tx *sql.Tx, snap Snapshot, records []Record, edges []Edge) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, label, taken_at, records, reachable, bytes) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Label, snap.TakenAt.UnixNano(), snap.Records, snap.Reachable, snap.Bytes)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (snapshot_id, handle, kind, size, reachable, summary) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare records: %w", err)
	}
	defer recStmt.Close()
	for _, r := range records {
		if _, err := recStmt.ExecContext(ctx, snap.ID, int64(r.Handle), r.Kind, r.Size, boolInt(r.Reachable), r.Summary); err != nil {
			return fmt.Errorf("insert record %s: %w", r.Handle, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT INTO edges (snapshot_id, parent, child) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edges: %w", err)
	}
	defer edgeStmt.Close()
	for _, e := range edges {
		if _, err := edgeStmt.ExecContext(ctx, snap.ID, int64(e.Parent), int64(e.Child)); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", e.Parent, e.Child, err)
		}
	}
	return nil
}

// Load reads the snapshot row for id.
func Load(ctx context.Context, db *sql.DB, id string) (Snapshot, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, label, taken_at, records, reachable, bytes FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return snap, err
}

// List returns every snapshot, oldest first.
func List(ctx context.Context, db *sql.DB) ([]Snapshot, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, label, taken_at, records, reachable, bytes FROM snapshots ORDER BY taken_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner) (Snapshot, error) {
	var snap Snapshot
	var taken int64
	if err := s.Scan(&snap.ID, &snap.Label, &taken, &snap.Records, &snap.Reachable, &snap.Bytes); err != nil {
		return Snapshot{}, err
	}
	snap.TakenAt = time.Unix(0, taken).UTC()
	return snap, nil
}

// Records returns the records of snapshot id ordered by handle.
func Records(ctx context.Context, db *sql.DB, id string) ([]Record, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT handle, kind, size, reachable, summary FROM records WHERE snapshot_id = ? ORDER BY handle`, id)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var hd int64
		var live int
		if err := rows.Scan(&hd, &r.Kind, &r.Size, &live, &r.Summary); err != nil {
			return nil, err
		}
		r.Handle = value.Handle(hd)
		r.Reachable = live != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Edges returns the references recorded in snapshot id.
func Edges(ctx context.Context, db *sql.DB, id string) ([]Edge, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT parent, child FROM edges WHERE snapshot_id = ? ORDER BY parent, child`, id)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var p, c int64
		if err := rows.Scan(&p, &c); err != nil {
			return nil, err
		}
		out = append(out, Edge{Parent: value.Handle(p), Child: value.Handle(c)})
	}
	return out, rows.Err()
}

func summarize(rec heap.Record) string {
	switch r := rec.(type) {
	case *heap.String:
		s := r.Str()
		if len(s) > summaryLimit {
			s = s[:summaryLimit] + "..."
		}
		return fmt.Sprintf("%q", s)
	case *heap.Vector:
		return fmt.Sprintf("len=%d cap=%d", r.Len(), r.Cap())
	case *heap.Frame:
		return fmt.Sprintf("slots=%d parent=%v", len(r.Slots), r.HasParent())
	case *heap.Closure:
		return fmt.Sprintf("arity=%d", r.Arity)
	}
	return rec.TypeName()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
