package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/campusduka/storefront/internal/cartclient"
	"github.com/campusduka/storefront/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "CARTCTL"

type cliState struct {
	viper   *viper.Viper
	cfgFile string
	logger  *zap.Logger
}

type cliSession struct {
	session *cartclient.Session
	remote  *cartclient.RemoteBackend
}

func main() {
	state := &cliState{viper: viper.New()}
	if err := newRootCommand(state).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(state *cliState) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "cartctl",
		Short:        "Inspect and edit a storefront cart from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&state.cfgFile, "config", "", "Path to configuration file")
	flags.String("server-url", "", "Storefront API base URL; empty keeps the cart on this machine")
	flags.String("token", "", "Session token sent as a bearer credential")
	flags.String("cache-path", defaultCachePath(), "Where the last known cart is stored")
	flags.Duration("interval", cartclient.DefaultSyncInterval, "Reconciliation interval for watch")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"server.url":    "server-url",
		"session.token": "token",
		"cache.path":    "cache-path",
		"sync.interval": "interval",
		"log.level":     "log-level",
	} {
		if err := state.viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(
		newShowCommand(state),
		newAddCommand(state),
		newUpdateCommand(state),
		newRemoveCommand(state),
		newClearCommand(state),
		newSyncCommand(state),
		newWatchCommand(state),
	)
	return rootCmd
}

func (s *cliState) init() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.viper.SetEnvPrefix(envPrefix)
	s.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.viper.AutomaticEnv()
	if s.cfgFile != "" {
		s.viper.SetConfigFile(s.cfgFile)
		if err := s.viper.ReadInConfig(); err != nil {
			return err
		}
	}
	logger, err := logging.NewLogger(s.viper.GetString("log.level"), "console")
	if err != nil {
		return err
	}
	s.logger = logger
	return nil
}

func (s *cliState) open(output io.Writer) (cliSession, error) {
	cache, err := cartclient.NewFileSnapshotCache(s.viper.GetString("cache.path"), time.Now)
	if err != nil {
		return cliSession{}, err
	}
	notifier := cartclient.NotifierFunc(func(notification cartclient.Notification) {
		fmt.Fprintf(output, "[%s] %s: %s\n", notification.Kind, notification.Title, notification.Message)
	})

	var backend cartclient.Backend
	var remote *cartclient.RemoteBackend
	if serverURL := strings.TrimSpace(s.viper.GetString("server.url")); serverURL != "" {
		remote, err = cartclient.NewRemoteBackend(cartclient.RemoteBackendConfig{
			BaseURL: serverURL,
			Token:   s.viper.GetString("session.token"),
			Logger:  s.logger.Named("remote"),
		})
		if err != nil {
			return cliSession{}, err
		}
		backend = remote
	} else {
		seed, _, err := cache.Load()
		if err != nil {
			return cliSession{}, err
		}
		backend = cartclient.NewLocalBackend(time.Now, seed)
	}

	session, err := cartclient.NewSession(cartclient.SessionConfig{
		Backend:  backend,
		Notifier: notifier,
		Cache:    cache,
		Clock:    time.Now,
		Logger:   s.logger.Named("session"),
	})
	if err != nil {
		return cliSession{}, err
	}
	return cliSession{session: session, remote: remote}, nil
}

func newShowCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := cli.session.Load(cmd.Context()); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), cli.session.Store().State())
			return nil
		},
	}
}

func newAddCommand(state *cliState) *cobra.Command {
	var (
		quantity int
		name     string
		price    int64
		stock    int
	)
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add units of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			product := cartclient.Product{ID: args[0], Name: name, PriceCents: price, Stock: stock}
			if cli.remote != nil {
				product, err = cli.remote.Product(cmd.Context(), args[0])
				if err != nil {
					return err
				}
			}
			if err := cli.session.Add(cmd.Context(), product, quantity); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), cli.session.Store().State())
			return nil
		},
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "Units to add")
	cmd.Flags().StringVar(&name, "name", "", "Product name for a local cart")
	cmd.Flags().Int64Var(&price, "price", 0, "Unit price in cents for a local cart")
	cmd.Flags().IntVar(&stock, "stock", 0, "Known stock for a local cart")
	return cmd
}

func newUpdateCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a cart line; zero removes it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := cli.session.Load(cmd.Context()); err != nil {
				return err
			}
			if err := cli.session.UpdateQuantity(cmd.Context(), args[0], quantity); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), cli.session.Store().State())
			return nil
		},
	}
}

func newRemoveCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := cli.session.Load(cmd.Context()); err != nil {
				return err
			}
			if err := cli.session.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), cli.session.Store().State())
			return nil
		},
	}
}

func newClearCommand(state *cliState) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cart line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return cli.session.Clear(cmd.Context(), !quiet)
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Skip the confirmation notification")
	return cmd
}

func newSyncCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the cart against current stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := cli.session.Sync(cmd.Context()); err != nil {
				return err
			}
			printCart(cmd.OutOrStdout(), cli.session.Store().State())
			return nil
		},
	}
}

func newWatchCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the cart reconciled until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := state.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cli.remote == nil {
				return errors.New("watch requires --server-url")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := cli.session.Load(ctx); err != nil {
				return err
			}
			output := cmd.OutOrStdout()
			unsubscribe := cli.session.Store().Subscribe(func(current cartclient.State) {
				if !current.Syncing && !current.Loading && len(current.Busy) == 0 {
					printCart(output, current)
				}
			})
			defer unsubscribe()

			scheduler, err := cli.session.StartSync(ctx, state.viper.GetDuration("sync.interval"))
			if err != nil {
				return err
			}
			<-ctx.Done()
			scheduler.Stop()
			return nil
		},
	}
}

func printCart(output io.Writer, state cartclient.State) {
	if len(state.Items) == 0 {
		fmt.Fprintln(output, "cart is empty")
		return
	}
	writer := tabwriter.NewWriter(output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PRODUCT\tNAME\tQTY\tSTOCK\tPRICE")
	for _, item := range state.Items {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\n", item.ProductID, item.Name, item.Quantity, item.Stock, formatCents(item.PriceCents))
	}
	fmt.Fprintf(writer, "\t\t%d\t\t%s\n", cartclient.ItemCount(state.Items), formatCents(cartclient.SubtotalCents(state.Items)))
	_ = writer.Flush()
	if state.Stale {
		fmt.Fprintln(output, "(offline: showing the last saved cart)")
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("KES %d.%02d", cents/100, cents%100)
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "cart.json"
	}
	return filepath.Join(home, ".cartctl", "cart.json")
}
