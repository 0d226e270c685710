package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/vttmarket/internal/catalog"
	"github.com/MarkoPoloResearchLab/vttmarket/internal/httpapi"
	"github.com/MarkoPoloResearchLab/vttmarket/internal/notify"
	"github.com/MarkoPoloResearchLab/vttmarket/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagJWTCookieName   = "jwt-cookie-name"
	flagRequireApproval = "require-approval"
	flagReviewerRole    = "reviewer-role"
	flagWebhookURL      = "webhook-url"
	flagCatalogFile     = "catalog-file"
	flagNuyen           = "nuyen"
	flagKarma           = "karma"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyJWTSigningKey   = "jwt_signing_key"
	configKeyJWTIssuer       = "jwt_issuer"
	configKeyJWTCookieName   = "jwt_cookie_name"
	configKeyRequireApproval = "require_approval"
	configKeyReviewerRole    = "reviewer_role"
	configKeyWebhookURL      = "webhook_url"

	defaultDatabaseURL = "sqlite:///tmp/vttmarket.db"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	AllowedOrigins  string
	JWTSigningKey   string
	JWTIssuer       string
	JWTCookieName   string
	RequireApproval bool
	ReviewerRole    string
	WebhookURL      string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "marketd",
		Short:         "In-game marketplace server for virtual tabletops",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "database connection string (postgres:// or sqlite path)")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "", "JWT cookie name")
	cmd.Flags().Bool(flagRequireApproval, true, "route checkouts through the review queue")
	cmd.Flags().String(flagReviewerRole, "", "session role allowed to review purchases")
	cmd.Flags().String(flagWebhookURL, "", "chat webhook for purchase notifications (optional)")

	cmd.AddCommand(newSeedCommand(cfg))
	cmd.AddCommand(newGrantCommand(cfg))
	cmd.AddCommand(newAssignCommand(cfg))

	return cmd
}

func newSeedCommand(cfg *runtimeConfig) *cobra.Command {
	var catalogFile string
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Load a catalog export into the database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(catalogFile) == "" {
				return fmt.Errorf("%s is required", flagCatalogFile)
			}
			items, err := catalog.LoadFile(catalogFile)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := store.UpsertCatalogItems(cmd.Context(), items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d catalog items\n", len(items))
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogFile, flagCatalogFile, "", "path to the catalog JSON export (required)")
	return cmd
}

func newGrantCommand(cfg *runtimeConfig) *cobra.Command {
	var (
		nuyenValue int64
		karmaValue int64
	)
	cmd := &cobra.Command{
		Use:           "grant <actor-id>",
		Short:         "Set an actor's nuyen and karma pools",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := market.NewActorID(args[0])
			if err != nil {
				return err
			}
			nuyen, err := market.NewNuyen(nuyenValue)
			if err != nil {
				return err
			}
			karma, err := market.NewKarma(karmaValue)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := store.SetPools(cmd.Context(), actor, market.Pools{Nuyen: nuyen, Karma: karma}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "actor %s: %d nuyen, %d karma\n", actor.String(), nuyen.Int64(), karma.Int64())
			return nil
		},
	}
	cmd.Flags().Int64Var(&nuyenValue, flagNuyen, 0, "nuyen pool value")
	cmd.Flags().Int64Var(&karmaValue, flagKarma, 0, "karma pool value")
	return cmd
}

func newAssignCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:           "assign <user-id> <actor-id>",
		Short:         "Assign a user's default character",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := market.NewUserID(args[0])
			if err != nil {
				return err
			}
			actor, err := market.NewActorID(args[1])
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()
			if err := store.SetDefaultActor(cmd.Context(), user, actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s plays %s\n", user.String(), actor.String())
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeyJWTSigningKey:   "JWT_SIGNING_KEY",
		configKeyJWTIssuer:       "JWT_ISSUER",
		configKeyJWTCookieName:   "JWT_COOKIE_NAME",
		configKeyRequireApproval: "REQUIRE_APPROVAL",
		configKeyReviewerRole:    "REVIEWER_ROLE",
		configKeyWebhookURL:      "WEBHOOK_URL",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	rootFlags := cmd.Root().Flags()
	flagPairs := map[string]string{
		configKeyListenAddr:      flagListenAddr,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeyJWTSigningKey:   flagJWTSigningKey,
		configKeyJWTIssuer:       flagJWTIssuer,
		configKeyJWTCookieName:   flagJWTCookieName,
		configKeyRequireApproval: flagRequireApproval,
		configKeyReviewerRole:    flagReviewerRole,
		configKeyWebhookURL:      flagWebhookURL,
	}
	if err := viper.BindPFlag(configKeyDatabaseURL, cmd.Root().PersistentFlags().Lookup(flagDatabaseURL)); err != nil {
		return err
	}
	for configKey, flagName := range flagPairs {
		if flag := rootFlags.Lookup(flagName); flag != nil {
			if err := viper.BindPFlag(configKey, flag); err != nil {
				return err
			}
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = strings.TrimSpace(viper.GetString(configKeyListenAddr))
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.JWTSigningKey = viper.GetString(configKeyJWTSigningKey)
	cfg.JWTIssuer = strings.TrimSpace(viper.GetString(configKeyJWTIssuer))
	cfg.JWTCookieName = strings.TrimSpace(viper.GetString(configKeyJWTCookieName))
	cfg.RequireApproval = viper.GetBool(configKeyRequireApproval)
	cfg.ReviewerRole = strings.TrimSpace(viper.GetString(configKeyReviewerRole))
	cfg.WebhookURL = strings.TrimSpace(viper.GetString(configKeyWebhookURL))
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	priceBook, err := catalog.NewBook(store)
	if err != nil {
		return err
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	operationLogger := notify.NewZapOperationLogger(logger)

	var notifier market.Notifier = notify.NewLogNotifier(logger)
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL, logger)
	}

	basketService, err := market.NewBasketService(store, priceBook, clock,
		market.WithActorResolver(store),
		market.WithBasketOperationLogger(operationLogger),
	)
	if err != nil {
		return fmt.Errorf("basket service init: %w", err)
	}
	materializer, err := market.NewMaterializer(store, priceBook, clock,
		market.WithMaterializerOperationLogger(operationLogger),
	)
	if err != nil {
		return fmt.Errorf("materializer init: %w", err)
	}
	workflow, err := market.NewWorkflow(store, priceBook, store, materializer, clock,
		market.WithNotifier(notifier),
		market.WithWorkflowOperationLogger(operationLogger),
	)
	if err != nil {
		return fmt.Errorf("workflow init: %w", err)
	}

	apiConfig := httpapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		SessionSigningKey: cfg.JWTSigningKey,
		SessionIssuer:     cfg.JWTIssuer,
		SessionCookieName: cfg.JWTCookieName,
		RequireApproval:   cfg.RequireApproval,
		ReviewerRole:      cfg.ReviewerRole,
	}
	if err := apiConfig.Validate(); err != nil {
		return err
	}

	return httpapi.Run(ctx, apiConfig, httpapi.Services{
		Basket:   basketService,
		Workflow: workflow,
	}, logger)
}

func openStore(ctx context.Context, dsn string) (*gormstore.Store, func() error, error) {
	gormDB, cleanup, driver, err := openDatabase(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := prepareSchema(gormDB, driver); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return gormstore.New(gormDB), cleanup, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "vttmarket.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
