package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joelkehle/objection-desk/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect stored case settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored case settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		cs, err := store.Load(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "load settings")
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cs)
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}
