// runxd is the runxchat backend daemon: a websocket chat gateway backed by
// a relational thread store and an external auth service, proxying user
// messages to an LLM chat-completion API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"runxchat/internal/auth"
	"runxchat/internal/chat"
	"runxchat/internal/config"
	"runxchat/internal/llm"
	"runxchat/internal/logging"
	"runxchat/internal/server"
	"runxchat/internal/store"
)

var (
	configPath string
	debug      bool

	logger *zap.Logger
)

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("42")).
	Padding(0, 1)

var rootCmd = &cobra.Command{
	Use:   "runxd",
	Short: "runxchat - health assistant chat backend",
	Long: `runxd serves the RunX health assistant backend.

It authenticates users against an external auth service, persists
conversation threads in a relational store, and proxies messages to an LLM
chat-completion API over a per-connection websocket session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway",
	RunE:  runServe,
}

var initDBCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create or migrate the database schema",
	RunE:  runInitDB,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "runxchat.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initDBCmd)
}

// loadConfig reads config and enforces the fatal requirements. A missing
// DATABASE_URL exits the process; a missing auth URL only warns.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return nil, err
	}
	if cfg.Auth.APIURL == "" {
		logger.Warn("AUTH_API_URL not set, authentication will fail")
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	if err := st.AutoMigrate(); err != nil {
		return err
	}

	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return err
	}

	bridge := auth.New(cfg.Auth.APIURL, st, cfg.Auth.Timeout, logger)
	handler := chat.NewHandler(st, client, logger,
		chat.WithCredentialCheck(chat.ConfigCredential(cfg.LLM.APIKey)))
	gateway := server.New(cfg.Server.ListenAddr, st, bridge, handler, logger)

	fmt.Println(bannerStyle.Render(fmt.Sprintf("runxd — listening on %s (model %s)", cfg.Server.ListenAddr, client.Model())))
	logger.Info("starting gateway",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", client.Model()))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return gateway.Run(ctx)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.AutoMigrate(); err != nil {
		return err
	}
	logger.Info("database schema ready")
	fmt.Println(bannerStyle.Render("schema created"))
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
