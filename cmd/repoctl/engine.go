package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coreforge/contentrepo/internal/access"
	"github.com/coreforge/contentrepo/internal/cache"
	"github.com/coreforge/contentrepo/internal/hierarchy"
	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/itemmgr"
	"github.com/coreforge/contentrepo/internal/nodetype"
	"github.com/coreforge/contentrepo/internal/nodetype/seed"
	"github.com/coreforge/contentrepo/internal/ops"
	"github.com/coreforge/contentrepo/internal/persist/sqlitestore"
	"github.com/coreforge/contentrepo/internal/session"
)

// rootNodeID is the fixed id every repoctl-managed repository uses for its
// root node, so repeated invocations against the same --db file agree on
// where the tree starts without needing a separate sidecar record.
var rootNodeID = mustParseRoot("00000000-0000-0000-0000-000000000001")

func mustParseRoot(s string) ident.NodeId {
	id, err := ident.NodeIdFromString(s)
	if err != nil {
		panic(err)
	}
	return id
}

// defaultRootType is the primary type of the root node bootstrapped for
// every brand-new repository, whether or not --types is given.
const defaultRootType = "nt:folder"

// engine bundles the full stack a repoctl command drives: persistence,
// session overlay, hierarchy, item manager and batched operations. Grounded
// on how cmd/bd's commands open a storage.Storage and tear it down per run.
type engine struct {
	store *sqlitestore.Store
	sess  *session.Session
	hier  *hierarchy.Manager
	items *itemmgr.Manager
	ops   *ops.Manager
	root  ident.NodeId
}

func (e *engine) Close() error { return e.store.Close() }

func openEngine(cmd *cobra.Command) (*engine, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	typesPath, _ := cmd.Flags().GetString("types")

	log := slog.Default()
	store, err := sqlitestore.Open(dbPath, log)
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(typesPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sess := session.New(store, log)
	ctx := context.Background()

	if err := bootstrapRoot(ctx, sess); err != nil {
		_ = store.Close()
		return nil, err
	}

	hier := hierarchy.New(sess, rootNodeID)
	c := cache.New()
	items := itemmgr.New(sess, c, hier, registry, access.AllowAll{}, log)
	sess.AddListener(items)
	opsmgr := ops.New(sess, hier, registry, access.AllowAll{}, nil, nil, log)

	return &engine{store: store, sess: sess, hier: hier, items: items, ops: opsmgr, root: rootNodeID}, nil
}

// bootstrapRoot creates rootNodeID in status NEW and commits it the first
// time repoctl touches a fresh database.
func bootstrapRoot(ctx context.Context, sess *session.Session) error {
	exists, err := sess.Has(ctx, ident.NodeItemId(rootNodeID))
	if err != nil {
		return fmt.Errorf("repoctl: checking root: %w", err)
	}
	if exists {
		return nil
	}
	root, err := sess.CreateNew(ctx, ident.NodeItemId(rootNodeID), defaultRootType, ident.NilNodeId)
	if err != nil {
		return fmt.Errorf("repoctl: creating root: %w", err)
	}
	if err := sess.Edit(ctx); err != nil {
		return err
	}
	if err := sess.StoreCreated(ctx, root); err != nil {
		return err
	}
	return sess.Update(ctx)
}

// loadRegistry reads typesPath if given, else falls back to a small
// embedded default sufficient to exercise repoctl's commands out of the box.
func loadRegistry(typesPath string) (nodetype.Registry, error) {
	if typesPath != "" {
		doc, err := seed.LoadFile(typesPath)
		if err != nil {
			return nil, err
		}
		return seed.NewRegistry(doc)
	}
	doc := &seed.Document{
		Types: []seed.TypeSpec{
			{
				Name: defaultRootType,
				Properties: []seed.PropSpec{
					{Name: "title", Type: nodetype.ValueTypeString},
				},
				ChildNodes: []seed.NodeSpec{
					{Name: "*", RequiredPrimary: []string{defaultRootType}, DefaultPrimary: defaultRootType, AllowSameNameSibs: true},
				},
			},
			{Name: nodetype.MixinShareable},
		},
	}
	return seed.NewRegistry(doc)
}

// parsePath turns a "/"-separated CLI argument into an ident.Path. The
// empty string and "/" both denote the root.
func parsePath(s string) ident.Path {
	if s == "" || s == "/" {
		return ident.RootPath()
	}
	segs := splitClean(s)
	elems := make([]ident.PathElement, 0, len(segs))
	for _, seg := range segs {
		elems = append(elems, ident.PathElement{Name: ident.QualifiedName{Local: seg}})
	}
	return ident.NewPath(elems...)
}

func splitClean(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
