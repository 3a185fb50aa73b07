package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/chatturn/internal/profile"
	"github.com/hrygo/chatturn/server"
	"github.com/hrygo/chatturn/server/chat"
	"github.com/hrygo/chatturn/store"
	"github.com/hrygo/chatturn/store/db"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "chatturn",
		Short: "Chat turn orchestration server with retrieval, safety screening and provider fallback.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context())
		},
	}

	turnCmd = &cobra.Command{
		Use:   "turn [message]",
		Short: "Run a single chat turn and print the result as JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(cmd, strings.Join(args, " "))
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(version)
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver (sqlite or postgres)")
	flags.String("dsn", "", "database source name (aka. DSN)")
	flags.String("settings", "", "settings file (YAML or JSON)")
	flags.String("redis-addr", "", "Redis address for the user settings cache")
	flags.Float64("turn-rate", 0, "per-user chat turns per second")
	flags.Int("turn-burst", 0, "per-user chat turn burst")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn", "settings", "redis-addr", "turn-rate", "turn-burst"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("chatturn")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	turnCmd.Flags().String("user", "cli-user", "user id of the turn")
	turnCmd.Flags().String("conversation", "", "conversation id to continue")
	turnCmd.Flags().Bool("hybrid-search", false, "augment with hybrid document search")
	turnCmd.Flags().Bool("web-search", false, "augment with web search")
	turnCmd.Flags().String("model", "", "model deployment name")

	rootCmd.AddCommand(migrateCmd, turnCmd, versionCmd)
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:          viper.GetString("mode"),
		Addr:          viper.GetString("addr"),
		Port:          viper.GetInt("port"),
		Data:          viper.GetString("data"),
		Driver:        viper.GetString("driver"),
		DSN:           viper.GetString("dsn"),
		SettingsFile:  viper.GetString("settings"),
		RedisAddr:     viper.GetString("redis-addr"),
		TurnRateLimit: viper.GetFloat64("turn-rate"),
		TurnRateBurst: viper.GetInt("turn-burst"),
		Version:       version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	setupLogger(p)
	return p, nil
}

func setupLogger(p *profile.Profile) {
	if p.IsDev() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

func runServe(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServer(ctx, p)
	if err != nil {
		return err
	}
	printGreetings(p)

	err = s.Start(ctx)
	// Shutdown runs after the signal context is done, so give it a fresh one.
	s.Shutdown(context.Background())
	return err
}

func runMigrate(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return err
	}
	storeInstance := store.New(driver, p, nil)
	defer storeInstance.Close()
	if err := storeInstance.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("migration completed", slog.String("driver", p.Driver))
	return nil
}

func runTurn(cmd *cobra.Command, message string) error {
	ctx := cmd.Context()
	p, err := loadProfile()
	if err != nil {
		return err
	}
	s, err := server.NewServer(ctx, p)
	if err != nil {
		return err
	}
	defer s.Shutdown(context.Background())

	flags := cmd.Flags()
	userID, _ := flags.GetString("user")
	conversationID, _ := flags.GetString("conversation")
	hybrid, _ := flags.GetBool("hybrid-search")
	web, _ := flags.GetBool("web-search")
	model, _ := flags.GetString("model")

	result, err := s.Chat.SubmitTurn(ctx, &chat.TurnRequest{
		Message:        message,
		ConversationID: conversationID,
		UserID:         userID,
		Options: chat.TurnOptions{
			HybridSearch:    hybrid,
			WebSearch:       web,
			ModelDeployment: model,
		},
	})
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("chatturn %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprintf(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}
	if p.Addr == "" {
		fmt.Printf("Listening on port %d\n", p.Port)
	} else {
		fmt.Printf("Listening on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
