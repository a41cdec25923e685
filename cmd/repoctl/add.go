package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreforge/contentrepo/internal/ident"
)

var addCmd = &cobra.Command{
	Use:   "add <parent-path> <name>",
	Short: "Create a new child node under parent-path",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdd,
}

func init() {
	addCmd.Flags().String("type", defaultRootType, "primary node type for the new node")
	addCmd.Flags().StringArray("mixin", nil, "mixin type to apply (can be used multiple times, e.g. --mixin mix:shareable)")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	parentPath, name := args[0], args[1]
	typeName, _ := cmd.Flags().GetString("type")
	mixins, _ := cmd.Flags().GetStringArray("mixin")

	eng, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	parentID, err := resolveNodePath(ctx, eng, parentPath)
	if err != nil {
		return err
	}

	if err := eng.sess.Edit(ctx); err != nil {
		return err
	}
	childID, err := eng.ops.CreateNodeState(ctx, parentID, ident.QualifiedName{Local: name}, typeName, mixins)
	if err != nil {
		return err
	}
	if err := eng.sess.Update(ctx); err != nil {
		return err
	}

	return printResult(kv{{"id", childID.String()}, {"path", parentPath + "/" + name}})
}

func resolveNodePath(ctx context.Context, eng *engine, p string) (ident.NodeId, error) {
	if p == "" || p == "/" {
		return eng.root, nil
	}
	return eng.hier.ResolveNodePath(ctx, parsePath(p))
}

// kv is an ordered list of result fields, used instead of a map so
// human-readable output prints in a deterministic order.
type kv []struct{ Key, Value string }

func printResult(fields kv) error {
	if jsonOutput {
		m := make(map[string]string, len(fields))
		for _, f := range fields {
			m[f.Key] = f.Value
		}
		enc := json.NewEncoder(cmdOut)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	for _, f := range fields {
		fmt.Fprintf(cmdOut, "%s: %s\n", f.Key, f.Value)
	}
	return nil
}
