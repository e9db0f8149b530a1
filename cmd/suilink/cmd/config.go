package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/suilink/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the saved configuration",
	Long: `Commands for the user configuration stored in the data directory.
The server must not be running when the data directory is used.`,
}

var showSecrets bool

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore(cmd.Context(), appOptions{dataDir: dataDir, postgresDSN: postgresDSN}, newLogger())
		if err != nil {
			return err
		}
		defer closeStore()

		cfg, err := store.LoadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if !showSecrets {
			cfg = cfg.Redacted()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Save configuration overrides",
	Long: `Save configuration overrides. Keys use the JSON names, for example
clientId, saltServiceUrl, proverUrl, proverAuthToken, backendUrl,
assetUploadUrl and network. An empty value clears the override.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openStore(cmd.Context(), appOptions{dataDir: dataDir, postgresDSN: postgresDSN}, newLogger())
		if err != nil {
			return err
		}
		defer closeStore()

		user, err := store.UserConfig(cmd.Context())
		if err != nil {
			return err
		}
		user, err = applySettings(user, args)
		if err != nil {
			return err
		}
		resolved, err := store.SaveConfig(cmd.Context(), user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved. Network:", resolved.Network)
		return nil
	},
}

// applySettings sets each key=value pair on cfg by JSON field name.
func applySettings(cfg config.Extension, pairs []string) (config.Extension, error) {
	fields := map[string]*string{
		"clientId":        &cfg.ClientID,
		"saltServiceUrl":  &cfg.SaltServiceURL,
		"proverUrl":       &cfg.ProverURL,
		"proverAuthToken": &cfg.ProverAuthToken,
		"backendUrl":      &cfg.BackendURL,
		"assetUploadUrl":  &cfg.AssetUploadURL,
		"network":         &cfg.Network,
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return cfg, fmt.Errorf("expected key=value, got %q", pair)
		}
		field, ok := fields[key]
		if !ok {
			return cfg, fmt.Errorf("unknown config key %q", key)
		}
		*field = strings.TrimSpace(value)
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd)
	configShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the prover auth token")
}
