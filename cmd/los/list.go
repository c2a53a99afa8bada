package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list [board]",
	Short: "List boards, categories, and bookmarks",
	Long: `List the catalog contents.

Without arguments, lists every board with its categories and bookmark
counts. With a board title, lists that board's bookmarks in full.`,
	Args: cobra.MaximumNArgs(1),
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
		byCategory := make(map[string][]*model.Bookmark)
		for _, bm := range bookmarks {
			byCategory[bm.CategoryID] = append(byCategory[bm.CategoryID], bm)
		}

		var filter string
		if len(args) == 1 {
			filter = strings.ToLower(args[0])
		}

		for _, b := range boards {
			if filter != "" && strings.ToLower(b.Title) != filter {
				continue
			}
			cats, err := st.ListCategories(ctx, b.ID)
			if err != nil {
				return err
			}
			var total int
			for _, c := range cats {
				total += len(byCategory[c.ID])
			}
			fmt.Println(display.Board(b.Title, len(cats), total))
			for _, c := range cats {
				fmt.Println(display.Category(c.Title, len(byCategory[c.ID])))
				if filter != "" {
					for _, bm := range byCategory[c.ID] {
						fmt.Println(display.Bookmark(bm.Title, bm.URL))
					}
				}
			}
		}

		if filter == "" {
			if loose := byCategory[""]; len(loose) > 0 {
				fmt.Println(display.Dim.Render("uncategorized") + " " + display.Muted.Render(fmt.Sprintf("(%d)", len(loose))))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
