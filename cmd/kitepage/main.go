// Command kitepage inspects a kite-pagepool data directory: opening the
// pool, reporting its cache statistics, and opening a single store for
// smoke-testing a configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/naveen246/kite-pagepool/config"
	"github.com/naveen246/kite-pagepool/logging"
	"github.com/naveen246/kite-pagepool/pool"
	"github.com/naveen246/kite-pagepool/vfs"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kitepage",
		Short: "Inspect and exercise a kite-pagepool data directory",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "kitepage.yaml", "path to the pool's YAML config")
	root.AddCommand(newStatsCmd(), newTouchCmd())
	return root
}

func openPool(cmd *cobra.Command) (*pool.Pool, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return pool.Open(pool.Config{
		Dir:       cfg.Dir,
		PageShift: cfg.PageShift,
		Capacity:  cfg.Capacity,
		Logger:    logger,
	})
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the pool's current buffer-cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pl.Release()

			s := pl.Stats()
			fmt.Fprintf(cmd.OutOrStdout(),
				"page_count=%d capacity=%d free=%d lru=%d pinned=%d\n",
				s.PageCount, s.Capacity, s.Free, s.LRU, s.Pinned)
			return nil
		},
	}
}

func newTouchCmd() *cobra.Command {
	var storeName string
	cmd := &cobra.Command{
		Use:   "touch",
		Short: "Open (creating if missing) a single store under the pool directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer pl.Release()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			s, err := pl.OpenStore(storeName, vfs.OpenOptions{
				CreateIfMissing: cfg.CreateIfMissing,
				ErrorIfExists:   cfg.ErrorIfExists,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "store %q opened (id=%s, pages=%d)\n", storeName, s.ID(), s.PageCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&storeName, "store", "default", "store name (file stem) to open")
	return cmd
}
