package session

import (
	"context"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemstate"
)

// Update commits every transient and attic state to the persistent layer and
// clears the overlay on success. Attic entries are destroyed; transient
// entries become the new persisted state (status flips to EXISTING inside
// the persistent Update implementation, per its own contract).
func (s *Session) Update(ctx context.Context) error {
	s.overlayMu.Lock()
	if err := s.requireEditingLocked(); err != nil {
		s.overlayMu.Unlock()
		return err
	}
	toDestroy := make([]itemstate.State, 0, len(s.attic))
	for _, st := range s.attic {
		toDestroy = append(toDestroy, st)
	}
	s.overlayMu.Unlock()

	for _, st := range toDestroy {
		if err := s.persistent.Destroy(ctx, st); err != nil {
			return err
		}
	}

	if err := s.persistent.Update(ctx); err != nil {
		return err
	}

	s.overlayMu.Lock()
	destroyed := make([]itemstate.State, 0, len(s.attic))
	for _, st := range s.attic {
		destroyed = append(destroyed, st)
	}
	s.transient = make(map[string]itemstate.State)
	s.attic = make(map[string]itemstate.State)
	s.editing = false
	s.overlayMu.Unlock()

	for _, st := range destroyed {
		s.publishDestroyed(st)
	}
	return nil
}

// Cancel discards the entire transient overlay and attic without
// persisting anything, firing stateDiscarded for each.
func (s *Session) Cancel(ctx context.Context) error {
	s.overlayMu.Lock()
	if err := s.requireEditingLocked(); err != nil {
		s.overlayMu.Unlock()
		return err
	}
	discarded := make([]itemstate.State, 0, len(s.transient)+len(s.attic))
	for _, st := range s.transient {
		discarded = append(discarded, st)
	}
	for _, st := range s.attic {
		discarded = append(discarded, st)
	}
	s.transient = make(map[string]itemstate.State)
	s.attic = make(map[string]itemstate.State)
	s.editing = false
	s.overlayMu.Unlock()

	if err := s.persistent.Cancel(ctx); err != nil {
		return err
	}
	for _, st := range discarded {
		s.publishDiscarded(st)
	}
	return nil
}

// DescendantTransients returns every transient state whose id is rootID
// itself or a descendant of rootID under path ancestry recorded via
// ParentID chains already present in the overlay. The Hierarchy Manager
// supplies the actual path-based walk (component F); this is the session's
// local, path-agnostic shortcut used when the caller already knows it wants
// "everything transient parented anywhere under this subtree that the
// overlay itself can see" without consulting persisted state.
//
// under(candidate) is supplied by the caller (internal/item) to test
// ancestry against the full hierarchy, since the session overlay alone
// cannot resolve paths.
func (s *Session) DescendantTransients(rootID ident.NodeId, under func(candidateParent ident.NodeId) bool) []itemstate.State {
	v, _, _ := s.descendantSF.Do("transient:"+rootID.String(), func() (interface{}, error) {
		s.overlayMu.Lock()
		defer s.overlayMu.Unlock()

		var out []itemstate.State
		for _, st := range s.transient {
			if matchesSubtree(st, rootID, under) {
				out = append(out, st)
			}
		}
		return out, nil
	})
	out, _ := v.([]itemstate.State)
	return out
}

// DescendantTransientsInAttic is DescendantTransients over the attic instead
// of the transient overlay, used when refreshing/saving needs to know which
// pending removals fall under a subtree.
func (s *Session) DescendantTransientsInAttic(rootID ident.NodeId, under func(candidateParent ident.NodeId) bool) []itemstate.State {
	v, _, _ := s.descendantSF.Do("attic:"+rootID.String(), func() (interface{}, error) {
		s.overlayMu.Lock()
		defer s.overlayMu.Unlock()

		var out []itemstate.State
		for _, st := range s.attic {
			if matchesSubtree(st, rootID, under) {
				out = append(out, st)
			}
		}
		return out, nil
	})
	out, _ := v.([]itemstate.State)
	return out
}

func matchesSubtree(st itemstate.State, rootID ident.NodeId, under func(ident.NodeId) bool) bool {
	if st.Node != nil && st.Node.ID == rootID {
		return true
	}
	parentID := st.ParentID()
	if parentID == rootID {
		return true
	}
	return under(parentID)
}
