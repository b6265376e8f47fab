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

	"github.com/MarkoPoloResearchLab/cartsync/internal/gateway/httpgateway"
	"github.com/MarkoPoloResearchLab/cartsync/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cartsync/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/cartsync/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagListenAddr        = "listen-addr"
	flagDatabaseURL       = "database-url"
	flagGuestStore        = "guest-store"
	flagCartAPIURL        = "cart-api-url"
	flagCartAPITimeout    = "cart-api-timeout"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookie     = "session-cookie"

	configKeyListenAddr        = "listen_addr"
	configKeyDatabaseURL       = "database_url"
	configKeyGuestStore        = "guest_store"
	configKeyCartAPIURL        = "cart_api_url"
	configKeyCartAPITimeout    = "cart_api_timeout"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeySessionSigningKey = "session_signing_key"
	configKeySessionIssuer     = "session_issuer"
	configKeySessionCookie     = "session_cookie"

	defaultListenAddr     = ":9090"
	defaultDatabaseURL    = "sqlite:///tmp/cartsync.db"
	defaultGuestStore     = "gorm"
	defaultCartAPIURL     = "http://localhost:8000/api"
	defaultCartAPITimeout = 10 * time.Second

	guestStoreGorm = "gorm"
	guestStorePgx  = "pgx"
)

type runtimeConfig struct {
	ListenAddr        string
	DatabaseURL       string
	GuestStore        string
	CartAPIURL        string
	CartAPITimeout    time.Duration
	AllowedOrigins    string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookie     string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cartsyncd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "cartsyncd",
		Short:         "Storefront cart synchronization API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "Guest-cart database connection string")
	cmd.Flags().String(flagGuestStore, defaultGuestStore, "Guest-cart store backend (gorm or pgx)")
	cmd.Flags().String(flagCartAPIURL, defaultCartAPIURL, "Upstream cart API base URL")
	cmd.Flags().Duration(flagCartAPITimeout, defaultCartAPITimeout, "Upstream cart API timeout")
	cmd.Flags().String(flagAllowedOrigins, "", "Comma-delimited CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "Session JWT signing key")
	cmd.Flags().String(flagSessionIssuer, "", "Session JWT issuer")
	cmd.Flags().String(flagSessionCookie, "", "Session cookie name")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyListenAddr:        "LISTEN_ADDR",
		configKeyDatabaseURL:       "DATABASE_URL",
		configKeyGuestStore:        "GUEST_STORE",
		configKeyCartAPIURL:        "CART_API_URL",
		configKeyCartAPITimeout:    "CART_API_TIMEOUT",
		configKeyAllowedOrigins:    "ALLOWED_ORIGINS",
		configKeySessionSigningKey: "SESSION_SIGNING_KEY",
		configKeySessionIssuer:     "SESSION_ISSUER",
		configKeySessionCookie:     "SESSION_COOKIE",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyListenAddr:        flagListenAddr,
		configKeyDatabaseURL:       flagDatabaseURL,
		configKeyGuestStore:        flagGuestStore,
		configKeyCartAPIURL:        flagCartAPIURL,
		configKeyCartAPITimeout:    flagCartAPITimeout,
		configKeyAllowedOrigins:    flagAllowedOrigins,
		configKeySessionSigningKey: flagSessionSigningKey,
		configKeySessionIssuer:     flagSessionIssuer,
		configKeySessionCookie:     flagSessionCookie,
	}
	for configKey, flagName := range flags {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.GuestStore = viper.GetString(configKeyGuestStore)
	cfg.CartAPIURL = viper.GetString(configKeyCartAPIURL)
	cfg.CartAPITimeout = viper.GetDuration(configKeyCartAPITimeout)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.SessionSigningKey = viper.GetString(configKeySessionSigningKey)
	cfg.SessionIssuer = viper.GetString(configKeySessionIssuer)
	cfg.SessionCookie = viper.GetString(configKeySessionCookie)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.GuestStore == "" {
		cfg.GuestStore = defaultGuestStore
	}
	if cfg.GuestStore != guestStoreGorm && cfg.GuestStore != guestStorePgx {
		return fmt.Errorf("unsupported guest store %q", cfg.GuestStore)
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	storageFactory, cleanup, err := buildStorageFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("guest store init: %w", err)
	}
	defer cleanup()

	gateway, err := httpgateway.New(httpgateway.Config{
		BaseURL: cfg.CartAPIURL,
		Timeout: cfg.CartAPITimeout,
	})
	if err != nil {
		return fmt.Errorf("gateway init: %w", err)
	}

	server, err := httpapi.New(httpapi.Config{
		ListenAddr:        cfg.ListenAddr,
		CartAPIBaseURL:    cfg.CartAPIURL,
		CartAPITimeout:    cfg.CartAPITimeout,
		AllowedOrigins:    httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		SessionSigningKey: cfg.SessionSigningKey,
		SessionIssuer:     cfg.SessionIssuer,
		SessionCookieName: cfg.SessionCookie,
	}, logger, gateway, storageFactory)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	return server.Run(ctx)
}

func buildStorageFactory(ctx context.Context, cfg *runtimeConfig) (httpapi.StorageFactory, func() error, error) {
	if cfg.GuestStore == guestStorePgx {
		if !isPostgresURL(cfg.DatabaseURL) {
			return nil, nil, fmt.Errorf("pgx guest store requires a postgres database url")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		factory := func(slotID string) (cart.GuestStorage, error) {
			return pgstore.New(pool, slotID)
		}
		cleanup := func() error {
			pool.Close()
			return nil
		}
		return factory, cleanup, nil
	}

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := gormstore.Migrate(gormDB); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	factory := func(slotID string) (cart.GuestStorage, error) {
		return gormstore.New(gormDB, slotID)
	}
	return factory, cleanup, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func resolveDriver(dsn string) (string, string, error) {
	if isPostgresURL(dsn) {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = "cartsync.db"
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
