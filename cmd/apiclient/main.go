package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"apiclient/internal/batcher"
	"apiclient/internal/client"
	"apiclient/internal/config"
	"apiclient/internal/endpoint"
)

var (
	configPath string
	baseURL    string
	email      string
	pwd        string
	levelFlag  string

	cli    *client.Client
	logger zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "apiclient",
		Short:             "Query the account API from the command line",
		SilenceUsage:      true,
		PersistentPreRunE: connect,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli != nil {
				cli.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "log in with this email before running the command")
	rootCmd.PersistentFlags().StringVar(&pwd, "pwd", "", "password for --email")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "ping",
			Short: "Check the API is reachable",
			Args:  cobra.NoArgs,
			RunE:  runPing,
		},
		&cobra.Command{
			Use:   "me",
			Short: "Print the identity of the current session",
			Args:  cobra.NoArgs,
			RunE:  runMe,
		},
		&cobra.Command{
			Use:   "users <id>...",
			Short: "Print users by id",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runUsers,
		},
		&cobra.Command{
			Use:   "mdo <id>...",
			Short: "Fetch the identity and users by id in one batched request",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runMDo,
		},
	)

	// Cancel in-flight calls on shutdown signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// connect loads config, creates the client and logs in when asked to
func connect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger = setupLogger(cfg.LogLevel)
	logger.Debug().
		Str("config", configPath).
		Str("baseUrl", cfg.BaseURL).
		Msg("starting apiclient")

	cli, err = client.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	cli.OnError(func(body json.RawMessage) {
		logger.Debug().RawJSON("body", body).Msg("api call failed")
	})

	if email == "" {
		return nil
	}

	me, err := cli.Login(cmd.Context(), email, pwd)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	logger.Info().Str("id", me.ID).Msg("logged in")
	return nil
}

// loadConfig reads the config file if given, then applies flag overrides.
// A missing file is fine when --base-url is set.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Read(configPath)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist) && baseURL != "":
		default:
			return nil, err
		}
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if levelFlag != "" {
		cfg.LogLevel = levelFlag
	}
	return config.Finalize(cfg)
}

func runPing(cmd *cobra.Command, args []string) error {
	start := time.Now()
	if err := cli.Ping(cmd.Context()); err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"ok":      true,
		"latency": time.Since(start).String(),
	})
}

func runMe(cmd *cobra.Command, args []string) error {
	me, err := cli.Me(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(me)
}

func runUsers(cmd *cobra.Command, args []string) error {
	users, err := cli.Users(cmd.Context(), args...)
	if err != nil {
		return err
	}
	return printJSON(users)
}

func runMDo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	h := cli.NewMDo()
	meRes, err := batcher.Call[*endpoint.Me](h, &endpoint.GetMe{})
	if err != nil {
		return err
	}
	usersRes, err := batcher.Call[[]endpoint.User](h, &endpoint.GetUsers{Users: args})
	if err != nil {
		return err
	}

	done, err := h.Flush(ctx)
	if err != nil {
		return err
	}
	if _, err := done.Await(ctx); err != nil {
		logger.Warn().Err(err).Msg("batch completed with errors")
	}

	out := make(map[string]interface{}, 2)
	if me, err := meRes.Await(ctx); err == nil {
		out["me"] = me
	} else {
		out["meError"] = err.Error()
	}
	if users, err := usersRes.Await(ctx); err == nil {
		out["users"] = users
	} else {
		out["usersError"] = err.Error()
	}
	return printJSON(out)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// stdout carries command output
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
