// Package session implements the Session Item-State Manager (component E of
// spec.md §4.1): it overlays this session's uncommitted transient changes on
// top of the persistent item-state manager, keeps the "attic" of removed
// states awaiting commit, and supports depth-first iteration of the
// transient closure under a node.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/persist"
)

// Errors surfaced by the session overlay, in the taxonomy of spec.md §7.
var (
	ErrNotFound         = errors.New("session: item not found")
	ErrAlreadyEditing   = errors.New("session: already in edit mode")
	ErrNotEditing       = errors.New("session: not in edit mode")
	ErrInvalidItemState = errors.New("session: invalid item state")
)

// Session is the per-session transient overlay on top of a persist.Manager.
//
// Two mutexes are used deliberately instead of one re-entrant lock
// (spec.md §5 calls for re-entrant locking so nested same-thread calls don't
// deadlock): OpMu is for a caller driving a multi-step operation to hold
// for the operation's whole duration (no package in this module takes it;
// internal/item's save/refresh do not); overlayMu guards the transient/attic maps themselves for each
// individual short mutation and is never held across a call out to another
// exported Session method, so it never needs to be reentrant.
type Session struct {
	persistent persist.Manager
	log        *slog.Logger

	OpMu sync.Mutex // held by callers orchestrating a multi-step session operation

	overlayMu sync.Mutex
	transient map[string]itemstate.State
	attic     map[string]itemstate.State
	editing   bool

	listeners []Listener

	// descendantSF collapses concurrent DescendantTransients/
	// DescendantTransientsInAttic walks of the same subtree into a single
	// pass: version-history initialization (internal/item's save path) can
	// trigger a recompute of a subtree's transient closure while another
	// goroutine is independently inspecting the same subtree (e.g. a
	// concurrent refresh check from outside the save path), and the walk
	// itself only reads the overlay under overlayMu, so sharing one pass's
	// result across callers racing on the same rootID is safe.
	descendantSF singleflight.Group
}

// New creates a Session overlaying persistent.
func New(persistent persist.Manager, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		persistent: persistent,
		log:        log,
		transient:  make(map[string]itemstate.State),
		attic:      make(map[string]itemstate.State),
	}
}

func key(id ident.ItemId) string { return id.String() }

// Get returns the transient state if present, else the attic state iff
// includeAttic, else the persistent state. Never returns a DESTROYED state.
func (s *Session) Get(ctx context.Context, id ident.ItemId, includeAttic bool) (itemstate.State, error) {
	s.overlayMu.Lock()
	if t, ok := s.transient[key(id)]; ok {
		s.overlayMu.Unlock()
		return t, nil
	}
	// A pending removal hides the persistent twin regardless of
	// includeAttic: the item is gone from this session's point of view
	// until the removal is either committed or discarded.
	if a, ok := s.attic[key(id)]; ok {
		s.overlayMu.Unlock()
		if includeAttic {
			return a, nil
		}
		return itemstate.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.overlayMu.Unlock()

	st, err := s.persistent.Get(ctx, id)
	if err != nil {
		if persist.IsNotFound(err) {
			return itemstate.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return itemstate.State{}, err
	}
	return st, nil
}

// Has reports whether Get(id, false) would succeed.
func (s *Session) Has(ctx context.Context, id ident.ItemId) (bool, error) {
	_, err := s.Get(ctx, id, false)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CreateNew returns a brand-new NodeState/PropertyState in status NEW, not
// yet stored.
func (s *Session) CreateNew(ctx context.Context, id ident.ItemId, typeOrName string, parentID ident.NodeId) (itemstate.State, error) {
	return s.persistent.CreateNew(ctx, id, typeOrName, parentID)
}

// Edit enters edit mode. Illegal if already in edit mode.
func (s *Session) Edit(ctx context.Context) error {
	s.overlayMu.Lock()
	defer s.overlayMu.Unlock()
	if s.editing {
		return ErrAlreadyEditing
	}
	if err := s.persistent.Edit(ctx); err != nil {
		return err
	}
	s.editing = true
	return nil
}

// requireEditingLocked must be called with overlayMu held.
func (s *Session) requireEditingLocked() error {
	if !s.editing {
		return ErrNotEditing
	}
	return nil
}

// Store records a mutation of state: NEW stays NEW, EXISTING becomes
// EXISTING_MODIFIED. state carries the already-mutated field values; when
// its status is still EXISTING (the caller mutated fields in place without
// touching status), the pristine pre-mutation twin is re-read from the
// persistent layer so the overlay snapshot reflects what was actually
// committed before, not the caller's new values. Idempotent per (edit
// session, state).
func (s *Session) Store(ctx context.Context, state itemstate.State) error {
	if state.GetStatus() == itemstate.StatusExisting {
		pristine, err := s.persistent.Get(ctx, state.ID())
		if err != nil {
			return fmt.Errorf("session: store: reading pristine twin: %w", err)
		}
		overlay := state.Clone()
		overlay.SetStatus(itemstate.StatusExistingModified)
		setOverlayTwin(overlay, pristine)
		state = overlay
	}

	s.overlayMu.Lock()
	if err := s.requireEditingLocked(); err != nil {
		s.overlayMu.Unlock()
		return err
	}

	switch state.GetStatus() {
	case itemstate.StatusNew, itemstate.StatusExistingModified, itemstate.StatusStaleModified:
		// NEW stays NEW; EXISTING_MODIFIED/STALE_MODIFIED re-storing is
		// idempotent and keeps whatever overlay twin is already attached.
	default:
		s.overlayMu.Unlock()
		return fmt.Errorf("%w: cannot store state in status %s", ErrInvalidItemState, state.GetStatus())
	}

	s.transient[key(state.ID())] = state
	s.overlayMu.Unlock()

	if err := s.persistent.Store(ctx, state); err != nil {
		return err
	}
	s.publishModified(state)
	return nil
}

func setOverlayTwin(overlay, pristine itemstate.State) {
	if overlay.Prop != nil {
		overlay.Prop.Overlayed = pristine.Prop.Clone()
		return
	}
	overlay.Node.Overlayed = pristine.Node.Clone()
}

// StoreCreated records a brand-new (status NEW) state in the transient
// overlay and publishes stateCreated. Used by batched operations right after
// CreateNew.
func (s *Session) StoreCreated(ctx context.Context, state itemstate.State) error {
	s.overlayMu.Lock()
	if err := s.requireEditingLocked(); err != nil {
		s.overlayMu.Unlock()
		return err
	}
	s.transient[key(state.ID())] = state
	s.overlayMu.Unlock()

	if err := s.persistent.Store(ctx, state); err != nil {
		return err
	}
	s.publishCreated(state)
	return nil
}

// Destroy schedules removal of state. For NEW, fully disposes (state
// becomes DESTROYED and is dropped from the overlay). For EXISTING (or
// EXISTING_MODIFIED), a clone moves to the attic with status
// EXISTING_REMOVED.
func (s *Session) Destroy(ctx context.Context, state itemstate.State) error {
	s.overlayMu.Lock()
	if err := s.requireEditingLocked(); err != nil {
		s.overlayMu.Unlock()
		return err
	}

	k := key(state.ID())
	switch state.GetStatus() {
	case itemstate.StatusNew:
		delete(s.transient, k)
		s.overlayMu.Unlock()
		if err := s.persistent.Destroy(ctx, state); err != nil {
			return err
		}
		s.publishDestroyed(state)
		return nil
	default:
		removed := state.Clone()
		removed.SetStatus(itemstate.StatusExistingRemoved)
		if removed.Prop != nil && removed.Prop.Overlayed == nil {
			removed.Prop.Overlayed = state.Clone().Prop
		}
		if removed.Node != nil && removed.Node.Overlayed == nil {
			removed.Node.Overlayed = state.Clone().Node
		}
		delete(s.transient, k)
		s.attic[k] = removed
		s.overlayMu.Unlock()
		// Fires stateDestroyed, not stateDiscarded: the item is gone for this
		// session from this point on (Get already serves NotFound via the
		// attic), even though nothing has reached the persistent layer yet.
		// stateDiscarded's EXISTING_REMOVED branch restores the cached item
		// instead, which is only right for genuinely undoing a pending
		// removal (DisposeTransientInAttic, used by Refresh).
		s.publishDestroyed(removed)
		return nil
	}
}

// HasTransient reports whether id currently carries transient or attic state
// in this session's overlay, without consulting the persistent layer. Used
// by the Item facade's save-time independence check (spec.md §4.5 step 5): a
// dependency id outside the affected set only blocks the save if it itself
// has uncommitted transient state here — a dependency with no transient
// state is ignored per the spec.
func (s *Session) HasTransient(id ident.ItemId) bool {
	s.overlayMu.Lock()
	defer s.overlayMu.Unlock()
	if _, ok := s.transient[key(id)]; ok {
		return true
	}
	_, ok := s.attic[key(id)]
	return ok
}

// DisposeTransient removes a single state from the transient overlay
// without committing, firing stateDiscarded.
func (s *Session) DisposeTransient(state itemstate.State) {
	s.overlayMu.Lock()
	delete(s.transient, key(state.ID()))
	s.overlayMu.Unlock()
	s.publishDiscarded(state)
}

// DisposeTransientInAttic removes a single state from the attic without
// committing, firing stateDiscarded (this is how a removal is "undone" by a
// refresh).
func (s *Session) DisposeTransientInAttic(state itemstate.State) {
	s.overlayMu.Lock()
	delete(s.attic, key(state.ID()))
	s.overlayMu.Unlock()
	s.publishDiscarded(state)
}
