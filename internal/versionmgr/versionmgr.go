// Package versionmgr defines the Version manager contract consulted by the
// Item layer's save path (spec.md §4.5.3, §6): initializing a fresh version
// history for a node that has just become versionable. The version storage
// subsystem itself (storing version content, checkin/checkout) is out of
// scope per spec.md §1; this package only defines the interface and a
// minimal in-memory implementation sufficient to exercise the contract.
package versionmgr

import (
	"context"

	"github.com/coreforge/contentrepo/internal/ident"
)

// History is the pair of ids a freshly initialized version history needs:
// the id of the version-history node itself and the id of its root version.
type History struct {
	HistoryID     ident.NodeId
	RootVersionID ident.NodeId
}

// Manager hands out a fresh version history for a node becoming versionable.
type Manager interface {
	GetVersionHistory(ctx context.Context, nodeID ident.NodeId) (History, error)
}

// InMemory allocates a brand-new history/root-version id pair per call. It
// does not persist any version-history subtree of its own; the caller
// (internal/item) is responsible for recording the four auto-properties
// spec.md §4.5.3 requires against whatever ids this Manager returns.
type InMemory struct{}

// GetVersionHistory implements Manager by minting two fresh ids.
func (InMemory) GetVersionHistory(context.Context, ident.NodeId) (History, error) {
	return History{HistoryID: ident.NewNodeId(), RootVersionID: ident.NewNodeId()}, nil
}
