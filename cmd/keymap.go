package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-research/yieldtree/internal/keymap"
)

func newKeymapCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keymap",
		Short: "Generate or inspect key maps",
	}
	cmd.AddCommand(newKeymapGenerateCmd(o), newKeymapShowCmd(o), newKeymapSourcesCmd(o), newKeymapUnitsCmd(o))
	return cmd
}

func newKeymapGenerateCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "generate [spreadsheet.csv]",
		Short: "Build a key map JSON document from a spreadsheet CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }() // read-only

			km, warnings, err := keymap.Generate(f, o.logger)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				o.logger.Warn("keymap row skipped or replaced", "detail", w.String())
			}
			if _, err := keymap.New(km); err != nil {
				return fmt.Errorf("generated keymap is invalid: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), output, km)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the key map here instead of stdout")
	return cmd
}

func newKeymapShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the key map in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := o.env()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), "", env.Keys.KeyMap())
		},
	}
}

func newKeymapSourcesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the data file kinds, the tool that writes each and how many keys map to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := o.env()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, src := range keymap.Sources() {
				tool := src.Tool()
				if tool == "" {
					tool = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", src, tool, len(env.Keys.KeysFor(src)))
			}
			return tw.Flush()
		},
	}
}

func newKeymapUnitsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the unit spellings key maps and input files may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := o.env()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, a := range env.Units.Aliases() {
				fmt.Fprintf(tw, "%s\t%s\n", a[0], a[1])
			}
			return tw.Flush()
		},
	}
}

// writeJSON writes v indented to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v any) error {
	doc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	doc = append(doc, '\n')
	if path == "" {
		_, err = w.Write(doc)
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
