package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/bridge"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
	syncengine "github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/sync"
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a bookmark to the catalog",
	Long: `Add a bookmark. With bidirectional sync enabled the bookmark is also
mirrored into the native tree under the mirror root.

  los add https://go.dev --title Go --board Work --category Go
  los add https://news.ycombinator.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		board, _ := cmd.Flags().GetString("board")
		category, _ := cmd.Flags().GetString("category")
		treeFile, _ := cmd.Flags().GetString("tree")
		wait, _ := cmd.Flags().GetDuration("wait")

		if category != "" && board == "" {
			return fmt.Errorf("--category requires --board")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine, _, cleanup, err := mutationEngine(ctx, treeFile, wait)
		if err != nil {
			return err
		}
		defer cleanup()

		bm := &model.Bookmark{URL: args[0], Title: title}
		if err := engine.AddBookmark(ctx, bm, board, category); err != nil {
			return err
		}
		if err := engine.Flush(ctx); err != nil {
			return err
		}

		fmt.Println(display.Success.Render("Added") + " " + display.URLStyle.Render(bm.URL))
		return nil
	},
}

// mutationEngine builds a one-shot engine for catalog mutations. With
// bidirectional sync enabled the real gateway is connected (tree file or
// extension bridge); with it disabled outbound dispatch is a no-op, so a
// throwaway in-memory tree stands in.
func mutationEngine(ctx context.Context, treeFile string, wait time.Duration) (*syncengine.Engine, *store.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, nil, err
	}
	if treeFile == "" {
		treeFile = cfg.TreeFile
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	closers := []func(){func() { st.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*syncengine.Engine, *store.Store, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	settings, err := st.GetSyncSettings(ctx)
	if err != nil {
		return fail(err)
	}

	var gateway nativetree.Gateway
	switch {
	case !settings.EnableBidirectional:
		mem := nativetree.NewMemory()
		closers = append(closers, mem.Close)
		gateway = mem
	case treeFile != "":
		ft, err := nativetree.OpenFileTree(treeFile, nil)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { ft.Close() })
		gateway = ft
	default:
		srv := bridge.NewServer(&bridge.Config{
			Port:   cfg.BridgePort,
			Logger: log.New(os.Stderr, "[bridge] ", log.LstdFlags),
		})
		if err := srv.Start(); err != nil {
			return fail(fmt.Errorf("failed to start bridge: %w", err))
		}
		closers = append(closers, func() { srv.Stop() })
		fmt.Printf("Waiting up to %s for the extension on port %d...\n", wait, cfg.BridgePort)
		if err := waitForBridge(ctx, srv, wait); err != nil {
			return fail(err)
		}
		gateway = srv
	}

	engine, err := syncengine.New(syncengine.Config{
		Catalog:  st,
		Mappings: st,
		Gateway:  gateway,
		Settings: settings,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, engine.Close)
	if err := engine.Initialize(ctx); err != nil {
		return fail(fmt.Errorf("failed to initialize sync engine: %w", err))
	}
	return engine, st, cleanup, nil
}

func init() {
	addCmd.Flags().String("title", "", "bookmark title")
	addCmd.Flags().String("board", "", "board to place the bookmark on (created if absent)")
	addCmd.Flags().String("category", "", "category within the board (created if absent)")
	addCmd.Flags().String("tree", "", "mirror into a JSON tree file instead of the bridge")
	addCmd.Flags().Duration("wait", 30*time.Second, "how long to wait for the extension to connect")

	rootCmd.AddCommand(addCmd)
}
