package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/nodetype"
)

// syncReferences recomputes the node_references rows sourced from property
// p, so HasNodeReferences/GetNodeReferences stay consistent with the
// persisted property values.
func (s *Store) syncReferences(ctx context.Context, tx *sql.Tx, p *itemstate.PropertyState) error {
	propKey := p.ID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM node_references WHERE property_id = ?`, propKey); err != nil {
		return fmt.Errorf("clear references for %s: %w", propKey, err)
	}
	if p.ValueType != nodetype.ValueTypeReference {
		return nil
	}
	for _, v := range p.Values {
		if v == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO node_references (target_node_id, property_id) VALUES (?, ?)
			ON CONFLICT (target_node_id, property_id) DO NOTHING
		`, v, propKey); err != nil {
			return fmt.Errorf("insert reference %s -> %s: %w", propKey, v, err)
		}
	}
	return nil
}

func (s *Store) clearReferencesFrom(ctx context.Context, tx *sql.Tx, state itemstate.State) error {
	if !state.IsProperty() {
		return nil
	}
	propKey := state.Prop.ID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM node_references WHERE property_id = ?`, propKey); err != nil {
		return fmt.Errorf("clear references for destroyed property %s: %w", propKey, err)
	}
	return nil
}

func (s *Store) HasNodeReferences(ctx context.Context, id ident.NodeId) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM node_references WHERE target_node_id = ?`, id.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: has node references %s: %w", id, err)
	}
	return count > 0, nil
}

func (s *Store) GetNodeReferences(ctx context.Context, id ident.NodeId) ([]ident.PropertyId, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT property_id FROM node_references WHERE target_node_id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get node references %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ident.PropertyId
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan reference row: %w", err)
		}
		pid, err := parsePropertyKey(key)
		if err != nil {
			continue // a reference row pointing at a malformed key is skipped, not fatal
		}
		out = append(out, pid)
	}
	return out, rows.Err()
}

func parsePropertyKey(key string) (ident.PropertyId, error) {
	parent, name, err := splitPropertyKey(key)
	if err != nil {
		return ident.PropertyId{}, err
	}
	parentID, err := ident.NodeIdFromString(parent)
	if err != nil {
		return ident.PropertyId{}, err
	}
	return ident.PropertyId{Parent: parentID, Name: ident.QualifiedName{Local: name}}, nil
}
