// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/engine"
	"github.com/pdiddy/cad-engine/internal/gemini"
	"github.com/pdiddy/cad-engine/internal/runner"
	"github.com/pdiddy/cad-engine/internal/secrets"
	"github.com/pdiddy/cad-engine/pkg/types"
)

const (
	defaultDataDir = "data"
	defaultAddr    = ":8080"
)

// addGenerationFlags registers the flags shared by commands that run the
// generation loop.
func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "AI model identifier (default gemini-2.5-pro)")
	cmd.Flags().Float64("temperature", 0, "sampling temperature (default 1.0)")
	cmd.Flags().Int("max-attempts", 0, "attempt budget per request (default 3)")
	cmd.Flags().Duration("stream-timeout", 0, "timeout per streaming AI call (default none)")
	cmd.Flags().String("interpreter", "", "path to the Python interpreter with build123d installed")
	cmd.Flags().Duration("exec-timeout", 0, "timeout per script execution (default none)")
}

// resolveConfig merges the config file, environment, and command flags.
// Flags win over viper; viper wins over defaults. The API key additionally
// falls back to .secrets/gemini-api-key.
func resolveConfig(cmd *cobra.Command) types.Config {
	cfg := types.Config{
		Generation: types.GenerationConfig{
			AIConfig: types.AIConfig{
				Model:         viper.GetString("generation.model"),
				Temperature:   viper.GetFloat64("generation.temperature"),
				StreamTimeout: viper.GetDuration("generation.stream_timeout"),
			},
			MaxAttempts: viper.GetInt("generation.max_attempts"),
		},
		Runtime: types.RuntimeConfig{
			InterpreterPath: viper.GetString("runtime.interpreter_path"),
			ExecTimeout:     viper.GetDuration("runtime.exec_timeout"),
		},
		Sessions: types.SessionConfig{
			DataDir: viper.GetString("sessions.data_dir"),
		},
		Server: types.ServerConfig{
			Addr: viper.GetString("server.addr"),
		},
	}

	cfg.Generation.APIKey = secrets.Value(loadedSecrets, secrets.KeyGeminiAPI,
		viper.GetString("generation.api_key"))

	if f := cmd.Flags(); f != nil {
		if v, _ := f.GetString("model"); v != "" {
			cfg.Generation.Model = v
		}
		if v, _ := f.GetFloat64("temperature"); v > 0 {
			cfg.Generation.Temperature = v
		}
		if v, _ := f.GetInt("max-attempts"); v > 0 {
			cfg.Generation.MaxAttempts = v
		}
		if v, _ := f.GetDuration("stream-timeout"); v > 0 {
			cfg.Generation.StreamTimeout = v
		}
		if v, _ := f.GetString("interpreter"); v != "" {
			cfg.Runtime.InterpreterPath = v
		}
		if v, _ := f.GetDuration("exec-timeout"); v > 0 {
			cfg.Runtime.ExecTimeout = v
		}
		if v, _ := f.GetString("addr"); v != "" {
			cfg.Server.Addr = v
		}
	}

	if v, _ := rootCmd.PersistentFlags().GetString("data-dir"); v != "" {
		cfg.Sessions.DataDir = v
	}
	if cfg.Sessions.DataDir == "" {
		cfg.Sessions.DataDir = defaultDataDir
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}

	return cfg
}

// buildEngine wires the generation loop: AI client, interpreter, and an
// attempt recorder (the session store, optionally instrumented).
func buildEngine(cfg types.Config, rec engine.Recorder, logger *zap.Logger) (*engine.Engine, error) {
	interp, err := runner.Detect(cfg.Runtime.InterpreterPath)
	if err != nil {
		return nil, err
	}
	ai := gemini.NewClient(cfg.Generation.AIConfig, logger)
	return engine.New(ai, interp, rec, cfg.Generation, cfg.Runtime, logger), nil
}
