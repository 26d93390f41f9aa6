package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/campusduka/storefront/internal/auth"
	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/config"
	"github.com/campusduka/storefront/internal/database"
	"github.com/campusduka/storefront/internal/ids"
	"github.com/campusduka/storefront/internal/logging"
	"github.com/campusduka/storefront/internal/orders"
	"github.com/campusduka/storefront/internal/payments"
	"github.com/campusduka/storefront/internal/server"
	"github.com/campusduka/storefront/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "storefront-api",
		Short: "Campus storefront cart and checkout service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}, newSeedCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "CORS origins allowed to send credentials")
	cmd.PersistentFlags().Int64("shipping-cents", defaults.GetInt64("checkout.shipping_cents"), "Flat shipping fee in cents")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "checkout.shipping_cents", "shipping-cents")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := ids.NewUUIDProvider()
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger.Named("catalog"),
	})
	if err != nil {
		return err
	}
	cartService, err := cart.NewService(cart.ServiceConfig{
		Database:   db,
		Catalog:    catalogService,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger.Named("cart"),
	})
	if err != nil {
		return err
	}
	gateway, err := payments.NewDeferredGateway(payments.DeferredGatewayConfig{
		IDProvider: idProvider,
		Logger:     logger.Named("payments"),
	})
	if err != nil {
		return err
	}
	sequencer, err := orders.NewSequencer(orders.SequencerConfig{
		Database:      db,
		Cart:          cartService,
		Gateway:       gateway,
		IDProvider:    idProvider,
		Clock:         time.Now,
		Logger:        logger.Named("orders"),
		ShippingCents: appConfig.ShippingCents,
	})
	if err != nil {
		return err
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		Audience:      appConfig.SessionAudience,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: validator,
		UserResolver:     userService,
		CatalogService:   catalogService,
		CartService:      cartService,
		OrderSequencer:   sequencer,
		Realtime:         server.NewRealtimeDispatcher(),
		RateLimiter:      server.NewRateLimiter(appConfig.GeneralRateLimit, appConfig.StrictRateLimit, time.Now),
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Request contexts derive from signalCtx so open cart event streams end on shutdown.
	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return signalCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newSeedCommand() *cobra.Command {
	var catalogFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert or refresh catalog products from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), catalogFile)
		},
	}
	cmd.Flags().StringVar(&catalogFile, "catalog", "catalog.yaml", "Catalog file with a top-level categories list")
	return cmd
}

func runSeed(ctx context.Context, catalogFile string) error {
	if strings.TrimSpace(catalogFile) == "" {
		return errors.New("--catalog is required")
	}
	catalogViper := viper.New()
	catalogViper.SetConfigFile(catalogFile)
	if err := catalogViper.ReadInConfig(); err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var seeds []catalog.CategorySeed
	if err := catalogViper.UnmarshalKey("categories", &seeds); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	logger, err := logging.NewLogger(viper.GetString("log.level"), viper.GetString("log.encoding"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	databasePath := viper.GetString("database.path")
	db, err := database.OpenSQLite(databasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger.Named("catalog"),
	})
	if err != nil {
		return err
	}
	result, err := catalogService.Seed(ctx, seeds)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "categories created: %d, products created: %d, products updated: %d\n",
		result.CategoriesCreated, result.ProductsCreated, result.ProductsUpdated)
	return nil
}
