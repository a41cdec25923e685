// Package sqlitestore implements the persist.Manager contract on top of
// github.com/ncruces/go-sqlite3, the pure-Go SQLite driver the teacher
// (steveyegge-beads) uses for its ephemeral and sqlite-backed stores. Each
// node/property state is stored as a JSON snapshot, mirroring the teacher's
// metadata-as-JSON columns (internal/storage/metadata.go) rather than
// exploding every NodeState field into its own column: the tree-shape
// invariants live in the session/item layers above this one, not here.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/persist"
)

// pendingOp is one queued mutation awaiting Update().
type pendingOp struct {
	state   itemstate.State
	destroy bool
}

// Store is a sqlite-backed persist.Manager. It is shared across sessions;
// the in-flight edit (pending map) is scoped to whichever session currently
// holds editMu, matching spec.md §5's "each session has its own transaction
// context" while keeping this single process-wide struct simple.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	dbPath string

	editMu  sync.Mutex // held for the duration of one Edit()..Update()/Cancel() cycle
	editing bool
	pending map[string]pendingOp

	listenersMu sync.Mutex
	listeners   []persist.Listener
}

// Open creates or opens a sqlite database at dbPath and ensures the schema
// exists. Grounded on ephemeral.New's connection setup (WAL, single
// connection, busy timeout).
func Open(dbPath string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create dir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping %s: %w", dbPath, err)
	}

	s := &Store{db: db, log: log, dbPath: dbPath, pending: make(map[string]pendingOp)}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitestore: begin schema init: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("sqlitestore: exec schema statement: %w\nSQL: %s", err, stmt)
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Stats summarizes a repository's backing sqlite file for repoctl's "stat"
// command, grounded on how the teacher's `bd stat` reports issue-store size
// and freshness.
type Stats struct {
	Nodes       int64
	Properties  int64
	SizeBytes   int64
	LastUpdated time.Time
}

// Stat reports row counts and on-disk size for the repository.
func (s *Store) Stat(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM node_states`).Scan(&st.Nodes); err != nil {
		return Stats{}, fmt.Errorf("sqlitestore: stat: count nodes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM property_states`).Scan(&st.Properties); err != nil {
		return Stats{}, fmt.Errorf("sqlitestore: stat: count properties: %w", err)
	}
	var lastUnix sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `
		SELECT max(updated_at) FROM (
			SELECT updated_at FROM node_states
			UNION ALL
			SELECT updated_at FROM property_states
		)`).Scan(&lastUnix); err != nil {
		return Stats{}, fmt.Errorf("sqlitestore: stat: last updated: %w", err)
	}
	if lastUnix.Valid {
		st.LastUpdated = time.Unix(lastUnix.Int64, 0).UTC()
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

var _ persist.Manager = (*Store)(nil)

func rowKey(id ident.ItemId) string { return id.String() }

func (s *Store) Get(ctx context.Context, id ident.ItemId) (itemstate.State, error) {
	if id.IsProperty() {
		return s.getProperty(ctx, rowKey(id))
	}
	return s.getNode(ctx, rowKey(id))
}

func (s *Store) getNode(ctx context.Context, key string) (itemstate.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM node_states WHERE id = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return itemstate.State{}, persist.ErrNoSuchItemState
	}
	if err != nil {
		return itemstate.State{}, fmt.Errorf("sqlitestore: get node %s: %w", key, err)
	}
	var n itemstate.NodeState
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return itemstate.State{}, fmt.Errorf("sqlitestore: decode node %s: %w", key, err)
	}
	n.Status = itemstate.StatusExisting
	n.Overlayed = nil
	return itemstate.NodeStateValue(&n), nil
}

func (s *Store) getProperty(ctx context.Context, key string) (itemstate.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM property_states WHERE id = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return itemstate.State{}, persist.ErrNoSuchItemState
	}
	if err != nil {
		return itemstate.State{}, fmt.Errorf("sqlitestore: get property %s: %w", key, err)
	}
	var p itemstate.PropertyState
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return itemstate.State{}, fmt.Errorf("sqlitestore: decode property %s: %w", key, err)
	}
	p.Status = itemstate.StatusExisting
	p.Overlayed = nil
	return itemstate.PropertyStateValue(&p), nil
}

func (s *Store) Has(ctx context.Context, id ident.ItemId) (bool, error) {
	_, err := s.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if persist.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) CreateNew(_ context.Context, id ident.ItemId, typeOrName string, parentID ident.NodeId) (itemstate.State, error) {
	if id.IsProperty() {
		p := &itemstate.PropertyState{
			ID:       id.PropertyId(),
			ParentID: parentID,
			Status:   itemstate.StatusNew,
		}
		p.ValueType = typeOrName
		return itemstate.PropertyStateValue(p), nil
	}
	n := &itemstate.NodeState{
		ID:          id.NodeId(),
		PrimaryType: typeOrName,
		ParentID:    parentID,
		HasParent:   !parentID.IsNil(),
		Status:      itemstate.StatusNew,
	}
	return itemstate.NodeStateValue(n), nil
}

func (s *Store) Edit(_ context.Context) error {
	s.editMu.Lock()
	if s.editing {
		s.editMu.Unlock()
		return fmt.Errorf("sqlitestore: %w: already in edit mode", persist.ErrItemStateError)
	}
	s.editing = true
	s.pending = make(map[string]pendingOp)
	return nil
}

func (s *Store) requireEditing() error {
	if !s.editing {
		return fmt.Errorf("sqlitestore: %w: not in edit mode", persist.ErrItemStateError)
	}
	return nil
}

func (s *Store) Store(_ context.Context, state itemstate.State) error {
	if err := s.requireEditing(); err != nil {
		return err
	}
	s.pending[rowKey(state.ID())] = pendingOp{state: state.Clone()}
	return nil
}

func (s *Store) Destroy(_ context.Context, state itemstate.State) error {
	if err := s.requireEditing(); err != nil {
		return err
	}
	s.pending[rowKey(state.ID())] = pendingOp{state: state.Clone(), destroy: true}
	return nil
}

// Update commits the edit atomically, retrying on SQLITE_BUSY with bounded
// backoff (grounded on the teacher's _busy_timeout + retry-around-commit
// pattern for Dolt/SQLite writers).
func (s *Store) Update(ctx context.Context) error {
	if err := s.requireEditing(); err != nil {
		return err
	}
	defer s.endEdit()

	ops := make(map[string]pendingOp, len(s.pending))
	for k, v := range s.pending {
		ops[k] = v
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err := backoff.Retry(func() error {
		txErr := s.applyTx(ctx, ops)
		if txErr != nil && isBusy(txErr) {
			return txErr // retryable
		}
		if txErr != nil {
			return backoff.Permanent(txErr)
		}
		return nil
	}, policy)
	if err != nil {
		return fmt.Errorf("sqlitestore: update: %w", err)
	}

	for _, op := range ops {
		if !op.destroy {
			s.notify(op.state.ID())
		}
	}
	return nil
}

func isBusy(err error) bool {
	return strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked")
}

func (s *Store) applyTx(ctx context.Context, ops map[string]pendingOp) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for key, op := range ops {
		if op.destroy {
			if op.state.IsProperty() {
				if _, err := tx.ExecContext(ctx, `DELETE FROM property_states WHERE id = ?`, key); err != nil {
					return fmt.Errorf("delete property %s: %w", key, err)
				}
			} else {
				if _, err := tx.ExecContext(ctx, `DELETE FROM node_states WHERE id = ?`, key); err != nil {
					return fmt.Errorf("delete node %s: %w", key, err)
				}
			}
			if err := s.clearReferencesFrom(ctx, tx, op.state); err != nil {
				return err
			}
			continue
		}

		if op.state.IsProperty() {
			p := op.state.Prop
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode property %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO property_states (id, parent_id, data, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
			`, key, p.ParentID.String(), string(data), now); err != nil {
				return fmt.Errorf("store property %s: %w", key, err)
			}
			if err := s.syncReferences(ctx, tx, p); err != nil {
				return err
			}
		} else {
			n := op.state.Node
			data, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("encode node %s: %w", key, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO node_states (id, data, updated_at) VALUES (?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
			`, key, string(data), now); err != nil {
				return fmt.Errorf("store node %s: %w", key, err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) endEdit() {
	s.editing = false
	s.pending = make(map[string]pendingOp)
	s.editMu.Unlock()
}

// Cancel discards all changes made since Edit.
func (s *Store) Cancel(_ context.Context) error {
	if err := s.requireEditing(); err != nil {
		return err
	}
	s.log.Debug("sqlitestore: edit cancelled", "pending", len(s.pending))
	s.editing = false
	s.pending = make(map[string]pendingOp)
	s.editMu.Unlock()
	return nil
}

func (s *Store) AddListener(l persist.Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) notify(id ident.ItemId) {
	s.listenersMu.Lock()
	ls := append([]persist.Listener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, l := range ls {
		l.ExternalChange(id)
	}
}
