package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/display"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive first-run setup",
	Long: `Walk through first-run setup: where data lives, which port the
extension bridge listens on, and whether bidirectional sync starts
enabled. Writes ~/.linkosaurus/config.yaml and the initial sync
settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		dataDir := cfg.DataDir
		port := strconv.Itoa(cfg.BridgePort)
		bidirectional := true
		deleteBehavior := string(model.DeleteBehaviorDelete)

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Data directory").
					Description("Catalog database and daemon state").
					Value(&dataDir),
				huh.NewInput().
					Title("Bridge port").
					Description("Local WebSocket port the browser extension connects to").
					Value(&port).
					Validate(func(s string) error {
						n, err := strconv.Atoi(s)
						if err != nil || n < 1 || n > 65535 {
							return fmt.Errorf("enter a port between 1 and 65535")
						}
						return nil
					}),
				huh.NewConfirm().
					Title("Enable bidirectional sync?").
					Description("Mirror catalog edits back into the browser tree").
					Value(&bidirectional),
				huh.NewSelect[string]().
					Title("When a bookmark is deleted locally").
					Options(
						huh.NewOption("Delete the browser bookmark too", string(model.DeleteBehaviorDelete)),
						huh.NewOption("Keep it, just stop syncing it", string(model.DeleteBehaviorArchive)),
					).
					Value(&deleteBehavior),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		portNum, _ := strconv.Atoi(port)
		path, err := config.Write(map[string]any{
			"data_dir":    dataDir,
			"bridge_port": portNum,
		})
		if err != nil {
			return err
		}

		// openStore re-resolves config, so it picks up the data dir we
		// just wrote.
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		db := model.DeleteBehavior(deleteBehavior)
		if _, err := st.SaveSyncSettings(context.Background(), model.SyncSettingsPatch{
			EnableBidirectional: &bidirectional,
			DeleteBehavior:      &db,
		}); err != nil {
			return err
		}

		fmt.Println(display.Success.Render("Setup complete."))
		fmt.Printf("Config written to %s\n", path)
		fmt.Println("Next: run " + display.Bold.Render("los import") + " then " + display.Bold.Render("los daemon"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
