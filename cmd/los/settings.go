package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/config"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/model"
	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change sync settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current sync settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.GetSyncSettings(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("enable_bidirectional:    %t\n", s.EnableBidirectional)
		fmt.Printf("mirror_root_name:        %s\n", s.MirrorRootName)
		fmt.Printf("import_folder_hierarchy: %t\n", s.ImportFolderHierarchy)
		fmt.Printf("conflict_policy:         %s\n", s.ConflictPolicy)
		fmt.Printf("delete_behavior:         %s\n", s.DeleteBehavior)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one sync setting",
	Long: `Change one sync setting. Takes effect the next time the daemon starts.

Keys:
  enable_bidirectional     true|false
  mirror_root_name         any folder name
  import_folder_hierarchy  true|false
  conflict_policy          last-writer-wins
  delete_behavior          delete|archive`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := buildPatch(args[0], args[1])
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.SaveSyncSettings(context.Background(), patch); err != nil {
			return err
		}
		fmt.Printf("Saved. %s takes effect at next daemon start.\n", args[0])
		return nil
	},
}

func buildPatch(key, value string) (model.SyncSettingsPatch, error) {
	var patch model.SyncSettingsPatch
	switch key {
	case "enable_bidirectional":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return patch, fmt.Errorf("invalid boolean %q for %s", value, key)
		}
		patch.EnableBidirectional = &v
	case "mirror_root_name":
		if value == "" {
			return patch, fmt.Errorf("mirror_root_name cannot be empty")
		}
		patch.MirrorRootName = &value
	case "import_folder_hierarchy":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return patch, fmt.Errorf("invalid boolean %q for %s", value, key)
		}
		patch.ImportFolderHierarchy = &v
	case "conflict_policy":
		p := model.ConflictPolicy(value)
		if p != model.PolicyLastWriterWins {
			return patch, fmt.Errorf("unknown conflict policy %q", value)
		}
		patch.ConflictPolicy = &p
	case "delete_behavior":
		b := model.DeleteBehavior(value)
		if b != model.DeleteBehaviorDelete && b != model.DeleteBehaviorArchive {
			return patch, fmt.Errorf("unknown delete behavior %q (want delete or archive)", value)
		}
		patch.DeleteBehavior = &b
	default:
		return patch, fmt.Errorf("unknown setting %q", key)
	}
	return patch, nil
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	return st, nil
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
