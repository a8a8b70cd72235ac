package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/martinemde/repairagent/agent"
	"github.com/martinemde/repairagent/config"
	"github.com/martinemde/repairagent/eventlog"
	"github.com/martinemde/repairagent/logging"
	"github.com/martinemde/repairagent/metrics"
	"github.com/martinemde/repairagent/sandbox"
	"github.com/martinemde/repairagent/unifiedllm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "repairagent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "repairagent",
		Short:         "Single-shot code repair agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(gollmBackend))
	root.AddCommand(newMetricsCmd())
	return root
}

// backendFactory builds the model backend for a run.
type backendFactory func(cfg *config.Config, logger *slog.Logger) (agent.Backend, error)

// gollmBackend serves requests through gollm behind a logging client.
func gollmBackend(cfg *config.Config, logger *slog.Logger) (agent.Backend, error) {
	adapter, err := unifiedllm.NewGollmAdapter(cfg.Provider, cfg.APIKey,
		unifiedllm.WithName(unifiedllm.CatalogProvider(cfg.Provider)),
		unifiedllm.WithModel(cfg.Model),
		unifiedllm.WithMaxTokens(cfg.MaxTokens),
		unifiedllm.WithTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, err
	}
	return unifiedllm.NewClient(
		unifiedllm.WithProvider(adapter.Name(), adapter),
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
	), nil
}

func newRunCmd(newBackend backendFactory, genOpts ...agent.GenerationOption) *cobra.Command {
	var (
		configFile string
		envFile    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ask the model for a fix and write it into the sandbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{File: configFile, EnvFile: envFile})
			if err != nil {
				return err
			}
			logger := logging.New(logging.Config{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Writer: cmd.ErrOrStderr(),
			})
			events := eventlog.New(cfg.LogFile)

			backend, err := newBackend(cfg, logger)
			if err != nil {
				if logErr := events.Record(eventlog.TypeError, err.Error()); logErr != nil {
					logger.Error("recording error event", slog.String("error", logErr.Error()))
				}
				return err
			}
			if closer, ok := backend.(unifiedllm.Closer); ok {
				defer closer.Close()
			}

			// Backoff is only interrupted by process termination.
			result, err := runAgent(context.Background(), cfg, backend, events, logger, genOpts...)
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "Agent finished: %s\n", result.Status)
				return nil
			case agent.ExitCode(err) == 0:
				fmt.Fprintf(cmd.OutOrStdout(), "Agent stopped: %v\n", err)
				return nil
			default:
				return fmt.Errorf("error during generation: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env when present)")
	return cmd
}

// runAgent performs one run against backend.
func runAgent(ctx context.Context, cfg *config.Config, backend agent.Backend, events *eventlog.Log, logger *slog.Logger, opts ...agent.GenerationOption) (*agent.Result, error) {
	box := sandbox.New(cfg.SandboxRoot, events)
	logger.InfoContext(ctx, "starting run",
		slog.String("event_log", events.Path()),
		slog.String("sandbox_root", box.Root()),
		slog.String("target", cfg.TargetFile),
		slog.String("model", cfg.Model))
	gen := agent.NewGenerationClient(backend, events,
		append([]agent.GenerationOption{agent.WithModel(cfg.Model)}, opts...)...)
	runner := agent.NewRunner(agent.RunnerOptions{
		TaskID:     cfg.TaskID,
		TargetPath: cfg.TargetFile,
		Goal:       cfg.Goal,
	}, events, gen, box, logger)
	return runner.Run(ctx)
}

func newMetricsCmd() *cobra.Command {
	var (
		logPath    string
		markerPath string
		outPath    string
		textfile   string
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Summarise an agent log into result.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := metrics.Extract(metrics.Options{LogPath: logPath, MarkerPath: markerPath})
			if err != nil {
				return err
			}
			if res.Skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d unreadable log lines\n", res.Skipped)
			}
			if err := res.WriteJSON(outPath); err != nil {
				return err
			}
			if textfile != "" {
				if err := res.WriteTextfile(textfile); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&logPath, "log", metrics.DefaultLogPath, "agent event log")
	cmd.Flags().StringVar(&markerPath, "marker", metrics.DefaultMarkerPath, "file whose presence marks the task resolved")
	cmd.Flags().StringVar(&outPath, "out", metrics.DefaultOutPath, "result JSON path")
	cmd.Flags().StringVar(&textfile, "textfile", "", "also write Prometheus textfile metrics here")
	return cmd
}
