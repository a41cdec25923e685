package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreforge/contentrepo/internal/ident"
	"github.com/coreforge/contentrepo/internal/ops"
)

var copyCmd = &cobra.Command{
	Use:   "copy <src-path> <dest-parent-path> <dest-name>",
	Short: "Deep-copy a subtree",
	Args:  cobra.ExactArgs(3),
	RunE:  runCopy,
}

func init() {
	copyCmd.Flags().String("flag", "fresh", `copy flag: "fresh", "clone" or "clone-remove-existing"`)
	rootCmd.AddCommand(copyCmd)
}

func runCopy(cmd *cobra.Command, args []string) error {
	srcPath, destParentPath, destName := args[0], args[1], args[2]
	flagName, _ := cmd.Flags().GetString("flag")
	flag, err := parseCopyFlag(flagName)
	if err != nil {
		return err
	}

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
	newID, err := eng.ops.Copy(ctx, nil, nil, src, destParent, ident.QualifiedName{Local: destName}, flag)
	if err != nil {
		return err
	}
	if err := eng.sess.Update(ctx); err != nil {
		return err
	}

	return printResult(kv{{"id", newID.String()}, {"path", destParentPath + "/" + destName}})
}

func parseCopyFlag(s string) (ops.CopyFlag, error) {
	switch s {
	case "", "fresh":
		return ops.CopyFresh, nil
	case "clone":
		return ops.Clone, nil
	case "clone-remove-existing":
		return ops.CloneRemoveExisting, nil
	default:
		return 0, fmt.Errorf("repoctl: unknown --flag %q", s)
	}
}
