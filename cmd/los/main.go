// Command los is the Link-o-Saurus daemon and catalog CLI.
//
// The daemon keeps a flat Board/Category/Bookmark catalog in sqlite and
// mirrors it bidirectionally against a native bookmark tree, reached
// either through the browser extension WebSocket bridge or a local JSON
// tree file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "los",
	Short: "Link-o-Saurus bookmark catalog and sync daemon",
	Long: `los manages a flat bookmark catalog (boards, categories, bookmarks)
and keeps it in sync with the browser's native bookmark tree.

Run 'los init' once to set up configuration, then 'los daemon' to start
the sync daemon. The browser extension connects to the daemon over a
local WebSocket bridge; for headless use, point the daemon at a JSON
tree file with --tree instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Init(cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.linkosaurus/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", display.ErrStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
