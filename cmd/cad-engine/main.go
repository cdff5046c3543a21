// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the cad-engine CLI.
// Implements: prd001-generation, prd004-sessions, prd005-api (CLI surface).
// See docs/ARCHITECTURE § Generation Loop, § Project Structure.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the cad-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "cad-engine",
	Short: "Text-to-CAD generation via build123d scripts",
	Long: `cad-engine turns natural-language part descriptions into 3D models. A
generative AI model writes a build123d Python script, an isolated interpreter
executes it, and execution errors are fed back to the model for correction
until an STL mesh is produced or the attempt budget runs out.

Each operation is a subcommand: generate starts a fresh model, iterate
modifies an existing one, sessions inspects past runs, and serve exposes
the loop over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./cad-engine.yaml or ~/.config/cad-engine/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().String("data-dir", "", "base directory for session state (default: ./data)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cad-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "cad-engine"))
		}
	}

	viper.SetEnvPrefix("CAD_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the CLI logger. Verbose mode enables debug output with
// development formatting; otherwise only warnings and errors reach stderr
// so command output stays parseable.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
