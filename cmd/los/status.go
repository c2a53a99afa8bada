package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open catalog database: %w", err)
		}
		defer st.Close()

		ctx := context.Background()

		boards, err := st.ListBoards(ctx)
		if err != nil {
			return err
		}
		bookmarks, err := st.ListBookmarks(ctx)
		if err != nil {
			return err
		}
		var categories int
		for _, b := range boards {
			cats, err := st.ListCategories(ctx, b.ID)
			if err != nil {
				return err
			}
			categories += len(cats)
		}
		mappings, err := st.CountMappingsByNodeType(ctx)
		if err != nil {
			return err
		}
		settings, err := st.GetSyncSettings(ctx)
		if err != nil {
			return err
		}
		lastSync, err := st.LastSyncTime(ctx)
		if err != nil {
			return err
		}

		fmt.Println(display.Bold.Render("Catalog") + " " + display.Muted.Render(cfg.DBPath))
		fmt.Println("  " + display.Count("boards", len(boards)))
		fmt.Println("  " + display.Count("categories", categories))
		fmt.Println("  " + display.Count("bookmarks", len(bookmarks)))
		fmt.Println(display.Rule(40))
		fmt.Println(display.Bold.Render("Sync"))
		fmt.Printf("  %s bidirectional sync %s\n", display.SyncDot(settings.EnableBidirectional), enabledWord(settings.EnableBidirectional))
		fmt.Printf("  mirror root:     %s\n", settings.MirrorRootName)
		fmt.Printf("  conflict policy: %s\n", settings.ConflictPolicy)
		fmt.Printf("  delete behavior: %s\n", settings.DeleteBehavior)
		fmt.Println("  " + display.Count("bookmark mappings", mappings[model.NodeTypeBookmark]))
		fmt.Println("  " + display.Count("folder mappings", mappings[model.NodeTypeFolder]))
		fmt.Printf("  last sync:       %s\n", display.RelativeTime(lastSync))
		return nil
	},
}

func enabledWord(on bool) string {
	if on {
		return display.Success.Render("enabled")
	}
	return display.Dim.Render("disabled")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
