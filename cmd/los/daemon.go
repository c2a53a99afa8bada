package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/bridge"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
	syncengine "github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the bookmark sync daemon",
	Long: `Start the sync daemon.

By default the daemon listens for the browser extension on a local
WebSocket bridge and exchanges native bookmark events and calls over it:

  los daemon                     # Bridge on default port 48766
  los daemon --port 49000        # Custom bridge port

For headless or development use, sync against a JSON tree file instead.
External edits to the file are picked up and synced like native browser
events:

  los daemon --tree ~/bookmarks.json
  los daemon --tree ~/bookmarks.json --seed tree.yaml   # Seed on first run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		treeFile, _ := cmd.Flags().GetString("tree")
		seedFile, _ := cmd.Flags().GetString("seed")
		port, _ := cmd.Flags().GetInt("port")

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
		if !cmd.Flags().Changed("port") && cfg.BridgePort != 0 {
			port = cfg.BridgePort
		}

		var logDst io.Writer = os.Stderr
		if lj := cfg.LogWriter(); lj != nil {
			defer lj.Close()
			logDst = lj
		}
		logger := log.New(logDst, "[daemon] ", log.LstdFlags)

		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open catalog database: %w", err)
		}
		defer st.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var (
			gateway nativetree.Gateway
			events  nativetree.EventSource
		)
		if treeFile != "" {
			if seedFile != "" {
				seed, err := nativetree.LoadSeed(seedFile)
				if err != nil {
					return err
				}
				if err := nativetree.SeedFileTree(treeFile, seed); err != nil {
					logger.Printf("seed skipped: %v", err)
				}
			}
			ft, err := nativetree.OpenFileTree(treeFile, log.New(logDst, "[filetree] ", log.LstdFlags))
			if err != nil {
				return err
			}
			defer ft.Close()
			gateway, events = ft, ft
			fmt.Printf("Syncing against tree file %s\n", treeFile)
		} else {
			srv := bridge.NewServer(&bridge.Config{
				Port:   port,
				Logger: log.New(logDst, "[bridge] ", log.LstdFlags),
			})
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start bridge: %w", err)
			}
			defer srv.Stop()
			gateway, events = srv, srv
			fmt.Printf("Bridge listening on ws://localhost:%d/ws\n", port)
			fmt.Printf("Health check: http://localhost:%d/health\n", port)
		}

		settings, err := st.GetSyncSettings(ctx)
		if err != nil {
			return err
		}
		if !settings.EnableBidirectional {
			fmt.Println(display.Warn.Render("Bidirectional sync is disabled; catalog edits will not be mirrored."))
		}

		engine, err := syncengine.New(syncengine.Config{
			Catalog:  st,
			Mappings: st,
			Gateway:  gateway,
			Events:   events,
			Settings: settings,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		if err := engine.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize sync engine: %w", err)
		}
		defer engine.Close()

		fmt.Println("Daemon running. Press Ctrl+C to stop...")
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 48766, "WebSocket bridge port")
	daemonCmd.Flags().String("tree", "", "sync against a JSON tree file instead of the bridge")
	daemonCmd.Flags().String("seed", "", "YAML seed used to create the tree file on first run")

	rootCmd.AddCommand(daemonCmd)
}
