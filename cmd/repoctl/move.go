package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/coreforge/contentrepo/internal/ident"
)

var moveCmd = &cobra.Command{
	Use:   "move <src-path> <dest-parent-path> <dest-name>",
	Short: "Move (or rename) a node",
	Args:  cobra.ExactArgs(3),
	RunE:  runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	srcPath, destParentPath, destName := args[0], args[1], args[2]

	eng, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	src, err := resolveNodePath(ctx, eng, srcPath)
	if err != nil {
		return err
	}
	destParent, err := resolveNodePath(ctx, eng, destParentPath)
	if err != nil {
		return err
	}

	if err := eng.sess.Edit(ctx); err != nil {
		return err
	}
	if err := eng.ops.Move(ctx, src, destParent, ident.QualifiedName{Local: destName}); err != nil {
		return err
	}
	if err := eng.sess.Update(ctx); err != nil {
		return err
	}

	return printResult(kv{{"moved", srcPath}, {"to", destParentPath + "/" + destName}})
}
