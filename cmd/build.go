package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/yieldtree/internal/snapshot"
	"github.com/agentic-research/yieldtree/internal/tree"
)

func newBuildCmd(o *options) *cobra.Command {
	var keys []string
	cmd := &cobra.Command{
		Use:   "build [path] [output.db]",
		Short: "Resolve every canonical key and store the answers in a SQLite snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, output := args[0], args[1]

			root, env, err := o.open(source)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				keys = env.Keys.Keys()
			}

			start := time.Now()
			answers, failed := tree.ResolveAll(root, keys)
			for _, f := range failed {
				o.logger.Warn("key failed to resolve", "key", f.Key, "err", f.Err)
			}

			w, err := snapshot.NewWriter(output, o.cfg.Snapshot.Table)
			if err != nil {
				return err
			}
			for _, a := range answers {
				q := snapshot.Quantity{Key: a.Key, Source: a.Source, Value: a.Value.Data}
				if a.Value.Unit != nil {
					q.Unit = a.Value.Unit.Symbol
				}
				if err := w.Add(q); err != nil {
					_ = w.Close()
					return err
				}
			}
			abs, _ := filepath.Abs(source)
			meta := map[string]string{
				"root":           abs,
				"tool":           o.cfg.Tool,
				"keymap_version": env.Keys.Version(),
				"built_at":       start.UTC().Format(time.RFC3339),
			}
			for k, v := range meta {
				if err := w.SetMeta(k, v); err != nil {
					_ = w.Close()
					return fmt.Errorf("meta %s: %w", k, err)
				}
			}
			if err := w.Close(); err != nil {
				return err
			}

			o.logger.Info("snapshot written", "path", output, "keys", len(answers), "failed", len(failed), "elapsed", time.Since(start))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d of %d keys to %s.\n", len(answers), len(keys), output)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "Only resolve these canonical keys")
	return cmd
}
