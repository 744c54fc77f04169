package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/tree"
)

func newTreeCmd(o *options) *cobra.Command {
	var maxChildren int
	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the node tree of an output directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := o.open(args[0])
			if err != nil {
				return err
			}
			limit := o.cfg.Display.MaxChildren
			if cmd.Flags().Changed("max") {
				limit = maxChildren
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), root.DisplayTree(limit))
			return err
		},
	}
	cmd.Flags().IntVarP(&maxChildren, "max", "m", 0, "Children listed per directory, 0 for all")
	return cmd
}

func newGetCmd(o *options) *cobra.Command {
	var showSource bool
	cmd := &cobra.Command{
		Use:   "get [path] [key...]",
		Short: "Resolve canonical keys against an output directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _, err := o.open(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range args[1:] {
				a, ok, err := tree.Locate(root, key)
				if err != nil {
					fmt.Fprintf(out, "%s: error: %v\n", key, err)
					continue
				}
				if !ok {
					fmt.Fprintf(out, "%s: not found\n", key)
					continue
				}
				if showSource {
					fmt.Fprintf(out, "%s = %s (%s)\n", key, a.Value, a.Source)
				} else {
					fmt.Fprintf(out, "%s = %s\n", key, a.Value)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showSource, "source", "s", false, "Show the file that answered each key")
	return cmd
}

func newKeysCmd(o *options) *cobra.Command {
	var presentOnly, byFile bool
	cmd := &cobra.Command{
		Use:   "keys [path]",
		Short: "List which canonical keys an output directory can answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, env, err := o.open(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if byFile {
				if err := fileKeys(tw, root, env.Keys); err != nil {
					return err
				}
				return tw.Flush()
			}
			for _, k := range env.Keys.Keys() {
				has := root.HasKey(k)
				if presentOnly && !has {
					continue
				}
				mark := "-"
				if has {
					mark = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\n", k, mark)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&presentOnly, "present", "p", false, "Only list keys that can be answered")
	cmd.Flags().BoolVarP(&byFile, "files", "f", false, "List the keys each data file can answer")
	return cmd
}

// fileKeys writes one row per native key a data file can answer, with the
// canonical key it maps to.
func fileKeys(w io.Writer, root *tree.Directory, km *keymap.Table) error {
	return root.Walk(func(n tree.Node, _ int) error {
		f, ok := n.(*tree.File)
		if !ok {
			return nil
		}
		natives := f.ExpectedKeys()
		sort.Strings(natives)
		for _, native := range natives {
			canonical, ok := km.Reverse(f.Source(), native)
			if !ok {
				canonical = "-"
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", f.Path(), native, canonical); err != nil {
				return err
			}
		}
		return nil
	})
}
