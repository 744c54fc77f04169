package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	yfs "github.com/agentic-research/yieldtree/internal/fs"
	"github.com/agentic-research/yieldtree/internal/graph"
	"github.com/agentic-research/yieldtree/internal/nfsmount"
)

func newMountCmd(o *options) *cobra.Command {
	var serveOnly bool
	var backend string
	cmd := &cobra.Command{
		Use:   "mount [path] [mountpoint]",
		Short: "Serve resolved keys as a read-only filesystem over NFS or FUSE",
		Long: `Resolves every canonical key under path and serves the answers:

  keys/<key>          rendered value with unit
  keys/<key>.unit     unit symbol, when the value has one
  keys/<key>.source   file that answered the key
  errors/<key>        why a key failed to resolve
  tree.txt            directory listing
  keymap.json         key map in use
  _manifest.json      what is being served

The fuse backend also exposes unit and source as user.yieldtree.* xattrs.
SIGHUP re-resolves path and swaps the served tree in place.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch backend {
			case "nfs":
			case "fuse":
				if serveOnly {
					return fmt.Errorf("--serve-only needs the nfs backend")
				}
			default:
				return fmt.Errorf("unknown backend %q, want nfs or fuse", backend)
			}
			if !serveOnly && len(args) != 2 {
				return fmt.Errorf("mountpoint required unless --serve-only is set")
			}
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			project := func() (*graph.Store, error) {
				root, env, err := o.open(dir)
				if err != nil {
					return nil, err
				}
				return graph.Project(root, env.Keys, graph.ProjectOptions{
					MaxChildren: o.cfg.Display.MaxChildren,
					Tool:        o.cfg.Tool,
					Logger:      o.logger,
				})
			}
			store, err := project()
			if err != nil {
				return err
			}
			served, _ := store.ListChildren("keys")
			o.logger.Info("projection ready", "path", dir, "keys", len(served))
			live := graph.NewHotSwapGraph(store)

			ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go reloadOnHangup(ctx, live, project, o.logger)

			if backend == "fuse" {
				return mountFUSE(ctx, cmd, live, dir, args[1])
			}
			var mountpoint string
			if !serveOnly {
				mountpoint = args[1]
			}
			return serveNFS(ctx, cmd, live, dir, mountpoint, o.logger)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "nfs", "Filesystem backend: nfs or fuse")
	cmd.Flags().BoolVar(&serveOnly, "serve-only", false, "Start the NFS server without calling mount")
	return cmd
}

// reloadOnHangup re-projects on SIGHUP until ctx ends. A failed projection
// keeps the previous one.
func reloadOnHangup(ctx context.Context, live *graph.HotSwapGraph, project func() (*graph.Store, error), logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next, err := project()
			if err != nil {
				logger.Error("reload failed, keeping previous projection", "err", err)
				continue
			}
			live.Swap(next)
			logger.Info("reloaded", "swaps", live.Swaps())
		}
	}
}

// serveNFS serves g until ctx ends, mounting it at mountpoint unless that is empty.
func serveNFS(ctx context.Context, cmd *cobra.Command, g graph.Graph, dir, mountpoint string, logger *slog.Logger) error {
	srv, err := nfsmount.NewServer(nfsmount.NewGraphFS(g), "")
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }() // safe to ignore
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "NFS server listening on port %d\n", srv.Port())

	if mountpoint == "" {
		<-ctx.Done()
		return nil
	}
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}
	if err := nfsmount.Mount(srv.Port(), mountpoint); err != nil {
		return err
	}
	fmt.Fprintf(out, "Mounted %s at %s (read-only). Ctrl-C to unmount, SIGHUP to reload.\n", dir, mountpoint)

	<-ctx.Done()
	if err := nfsmount.Unmount(mountpoint); err != nil {
		logger.Warn("unmount failed", "mountpoint", mountpoint, "err", err)
		return err
	}
	return nil
}

// mountFUSE mounts g at mountpoint until ctx ends or the mount goes away.
func mountFUSE(ctx context.Context, cmd *cobra.Command, g graph.Graph, dir, mountpoint string) error {
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}
	host := yfs.Mount(yfs.New(g), mountpoint)
	fmt.Fprintf(cmd.OutOrStdout(), "Mounting %s at %s over FUSE (read-only). Ctrl-C to unmount, SIGHUP to reload.\n", dir, mountpoint)
	select {
	case <-host.Done():
		return host.Err()
	case <-ctx.Done():
		return host.Unmount()
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
