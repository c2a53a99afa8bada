package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/urlnorm"
)

var rmCmd = &cobra.Command{
	Use:   "rm <url-or-id>",
	Short: "Remove a bookmark from the catalog",
	Long: `Remove a bookmark, matched by id or by URL. With bidirectional sync
enabled the native mirror is removed too, or kept with its correlation
severed when delete_behavior is archive.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeFile, _ := cmd.Flags().GetString("tree")
		wait, _ := cmd.Flags().GetDuration("wait")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		engine, st, cleanup, err := mutationEngine(ctx, treeFile, wait)
		if err != nil {
			return err
		}
		defer cleanup()

		bm, err := resolveBookmark(ctx, st, args[0])
		if err != nil {
			return err
		}

		if err := engine.DeleteBookmark(ctx, bm.ID); err != nil {
			return err
		}
		if err := engine.Flush(ctx); err != nil {
			return err
		}

		fmt.Println(display.Success.Render("Removed") + " " + display.URLStyle.Render(bm.URL))
		return nil
	},
}

// resolveBookmark accepts a bookmark id or a URL. URLs match canonically,
// so tracking parameters and case differences still find the bookmark.
func resolveBookmark(ctx context.Context, st *store.Store, arg string) (*model.Bookmark, error) {
	bm, err := st.GetBookmark(ctx, arg)
	if err == nil {
		return bm, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	canonical := urlnorm.Canonical(arg)
	bms, err := st.ListBookmarks(ctx)
	if err != nil {
		return nil, err
	}
	for _, cand := range bms {
		if urlnorm.Canonical(cand.URL) == canonical {
			return cand, nil
		}
	}
	return nil, fmt.Errorf("no bookmark matching %q", arg)
}

func init() {
	rmCmd.Flags().String("tree", "", "mirror into a JSON tree file instead of the bridge")
	rmCmd.Flags().Duration("wait", 30*time.Second, "how long to wait for the extension to connect")

	rootCmd.AddCommand(rmCmd)
}
