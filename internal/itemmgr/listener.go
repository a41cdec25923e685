package itemmgr

import (
	"github.com/coreforge/contentrepo/internal/itemstate"
	"github.com/coreforge/contentrepo/internal/session"
)

var _ session.Listener = (*Manager)(nil)

// StateCreated sets the cached status to NORMAL if an entry for the state's
// id is already present (a pre-created placeholder); it does not itself
// insert a new cache entry, per spec.md §4.4.
func (m *Manager) StateCreated(state itemstate.State) {
	for _, d := range m.cache.AllViews(state.ID()) {
		d.Status = itemstate.ItemDataNormal
		d.State = state
	}
}

// StateModified marks every cached view of state's id as MODIFIED. For a
// shareable node this updates every share view, not only the one the
// mutation was addressed through: the decision recorded in DESIGN.md for
// the §9 open question is that property/child-list changes on a shareable
// node are visible to every parent's view of it.
func (m *Manager) StateModified(state itemstate.State) {
	for _, d := range m.cache.AllViews(state.ID()) {
		d.Status = itemstate.ItemDataModified
		d.State = state
	}
}

// StateDestroyed evicts every cached view of state's id and marks it
// DESTROYED so any outstanding reference observes the transition on next
// use rather than reading stale data.
func (m *Manager) StateDestroyed(state itemstate.State) {
	views := m.cache.AllViews(state.ID())
	m.cache.Evict(state.ID())
	for _, d := range views {
		d.Status = itemstate.ItemDataDestroyed
	}
}

// StateDiscarded implements spec.md §4.4's three-way branch:
//   - EXISTING_REMOVED / EXISTING_MODIFIED / STALE_MODIFIED: the removal or
//     modification is undone; the cached item survives with its persistent
//     state restored.
//   - STALE_DESTROYED / NEW: treated as destroyed.
//   - anything else: INVALIDATED.
func (m *Manager) StateDiscarded(state itemstate.State) {
	switch state.GetStatus() {
	case itemstate.StatusExistingRemoved, itemstate.StatusExistingModified, itemstate.StatusStaleModified:
		overlayed := overlayedTwin(state)
		for _, d := range m.cache.AllViews(state.ID()) {
			d.Status = itemstate.ItemDataNormal
			if overlayed.Node != nil || overlayed.Prop != nil {
				d.State = overlayed
			}
		}
	case itemstate.StatusStaleDestroyed, itemstate.StatusNew:
		m.StateDestroyed(state)
	default:
		for _, d := range m.cache.AllViews(state.ID()) {
			d.Status = itemstate.ItemDataInvalidated
		}
		m.cache.Evict(state.ID())
	}
}

func overlayedTwin(state itemstate.State) itemstate.State {
	if state.Prop != nil && state.Prop.Overlayed != nil {
		return itemstate.PropertyStateValue(state.Prop.Overlayed)
	}
	if state.Node != nil && state.Node.Overlayed != nil {
		return itemstate.NodeStateValue(state.Node.Overlayed)
	}
	return itemstate.State{}
}
