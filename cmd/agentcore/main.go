// Package main provides the CLI entry point for the agent execution core.
//
// agentcore drives a single conversation against an LLM provider, giving
// it tools to call and persisting the resulting event log.
//
// # Basic Usage
//
// Run a single prompt to completion:
//
//	agentcore run --prompt "show me the cwd"
//
// Start an interactive session:
//
//	agentcore chat
//
// # Environment Variables
//
//   - AGENTCORE_CONFIG: path to a YAML configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentcore/nexus/internal/config"
	"github.com/agentcore/nexus/internal/observability"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := loadRuntimeConfig(os.Getenv("AGENTCORE_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(newLogHandler(cfg.Logging, os.Stderr)))

	_, shutdownTracer := observability.NewTracer(cfg.Tracing.TraceConfig())
	defer shutdownTracer(context.Background())

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// newLogHandler builds a slog.Handler matching the configured level and
// format ("json" or "text").
func newLogHandler(cfg config.LoggingConfig, out *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - software development agent execution core",
		Long: `agentcore drives an event-sourced conversation loop against an LLM
provider, dispatching tool calls and persisting the resulting event log.`,
		Version:      buildVersionString(),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("AGENTCORE_CONFIG"), "path to a YAML configuration file")

	rootCmd.AddCommand(
		buildRunCmd(&configPath),
		buildChatCmd(&configPath),
		buildVersionCmd(),
	)

	return rootCmd
}

func buildVersionString() string {
	return version + " (commit: " + commit + ", built: " + date + ")"
}
