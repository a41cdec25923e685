package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/ops"
)

var removeCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Remove the node at path and its subtree",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	target, err := resolveNodePath(ctx, eng, args[0])
	if err != nil {
		return err
	}
	d, err := eng.items.GetByID(ctx, ident.NodeItemId(target))
	if err != nil {
		return err
	}

	if err := eng.sess.Edit(ctx); err != nil {
		return err
	}
	if err := eng.ops.CheckRemoveNode(ctx, target, d.ParentID, ops.CheckAll); err != nil {
		return err
	}
	if err := eng.ops.RemoveNodeState(ctx, target); err != nil {
		return err
	}
	if err := eng.sess.Update(ctx); err != nil {
		return err
	}

	return printResult(kv{{"removed", args[0]}})
}
