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
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
	syncengine "github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/sync"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run the initial bulk import of the native bookmark tree",
	Long: `Walk the native bookmark tree once and populate the catalog.

Top-level folders become boards, second-level folders become categories,
and deeper folders are flattened into their nearest board/category pair.
Bookmarks already present (by canonical URL) are reused rather than
duplicated, so re-running import is safe.

  los import --tree ~/bookmarks.json   # Import from a JSON tree file
  los import                           # Import via the extension bridge
  los import --board Inbox             # Default board for loose bookmarks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		treeFile, _ := cmd.Flags().GetString("tree")
		board, _ := cmd.Flags().GetString("board")
		wait, _ := cmd.Flags().GetDuration("wait")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDataDir(); err != nil {
			return err
		}
		if treeFile == "" {
			treeFile = cfg.TreeFile
		}

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open catalog database: %w", err)
		}
		defer st.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var gateway nativetree.Gateway
		if treeFile != "" {
			ft, err := nativetree.OpenFileTree(treeFile, nil)
			if err != nil {
				return err
			}
			defer ft.Close()
			gateway = ft
		} else {
			srv := bridge.NewServer(&bridge.Config{
				Port:   cfg.BridgePort,
				Logger: log.New(os.Stderr, "[bridge] ", log.LstdFlags),
			})
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start bridge: %w", err)
			}
			defer srv.Stop()

			fmt.Printf("Waiting up to %s for the extension on port %d...\n", wait, cfg.BridgePort)
			if err := waitForBridge(ctx, srv, wait); err != nil {
				return err
			}
			gateway = srv
		}

		settings, err := st.GetSyncSettings(ctx)
		if err != nil {
			return err
		}

		engine, err := syncengine.New(syncengine.Config{
			Catalog:  st,
			Mappings: st,
			Gateway:  gateway,
			Settings: settings,
		})
		if err != nil {
			return err
		}
		defer engine.Close()

		stats, err := engine.InitialImport(ctx, syncengine.ImportOptions{
			DefaultBoardTitle: board,
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Println(display.Success.Render("Import complete") + " " +
			display.Muted.Render(fmt.Sprintf("(%s)", stats.Duration.Round(time.Millisecond))))
		fmt.Println("  " + display.Count("nodes visited", stats.NodesVisited))
		fmt.Println("  " + display.Count("boards created", stats.BoardsCreated))
		fmt.Println("  " + display.Count("categories created", stats.CategoriesCreated))
		fmt.Println("  " + display.Count("bookmarks created", stats.BookmarksCreated))
		fmt.Println("  " + display.Count("bookmarks reused", stats.BookmarksReused))
		fmt.Println("  " + display.Count("mappings written", stats.MappingsWritten))
		return nil
	},
}

// waitForBridge polls until the extension connects or the deadline
// passes.
func waitForBridge(ctx context.Context, srv *bridge.Server, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for !srv.Connected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("no extension connected within %s", wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return nil
}

func init() {
	importCmd.Flags().String("tree", "", "import from a JSON tree file instead of the bridge")
	importCmd.Flags().String("board", "", "default board for bookmarks outside any folder")
	importCmd.Flags().Duration("wait", 30*time.Second, "how long to wait for the extension to connect")

	rootCmd.AddCommand(importCmd)
}
