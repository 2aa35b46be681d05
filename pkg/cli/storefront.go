package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/storefront/pkg/api"
	"github.com/nimburion/storefront/pkg/auth"
	"github.com/nimburion/storefront/pkg/catalog"
	"github.com/nimburion/storefront/pkg/config"
	"github.com/nimburion/storefront/pkg/eventbus"
	eventbusfactory "github.com/nimburion/storefront/pkg/eventbus/factory"
	"github.com/nimburion/storefront/pkg/health"
	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/realtime/sse"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server"
	"github.com/nimburion/storefront/pkg/server/router"
	"github.com/nimburion/storefront/pkg/store"
)

// ServiceName is the default service name and config env prefix root.
const ServiceName = "storefront"

// App holds the wired storefront components.
type App struct {
	Config    *config.Config
	Store     store.DocumentStore
	Publisher *eventbus.Publisher
	Tokens    *auth.TokenService
	Catalog   *catalog.Catalog
	Health    *health.Registry
	Feed      *sse.Manager
	// FeedHandler streams Feed; nil when the feed is disabled.
	FeedHandler *sse.Handler
	log         logger.Logger
}

// StoreFactory opens the document store; tests swap it for a memory store.
type StoreFactory func(cfg config.DatabaseConfig, log logger.Logger) (store.DocumentStore, error)

func defaultStoreFactory(cfg config.DatabaseConfig, log logger.Logger) (store.DocumentStore, error) {
	return store.NewDocumentStore(cfg, catalog.OrderFields(), log)
}

// Cosa fa: apre store documentale e publisher eventi, crea token service e catalogo,
// e registra i controlli di salute.
// Cosa NON fa: non avvia server HTTP; chi la chiama deve invocare Close.
// Esempio minimo: app, err := cli.NewApp(cfg, log, nil)
func NewApp(cfg *config.Config, log logger.Logger, openStore StoreFactory) (*App, error) {
	log = logger.OrNop(log)
	if openStore == nil {
		openStore = defaultStoreFactory
	}
	st, err := openStore(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	app := &App{Config: cfg, Store: st, log: log}

	var observe []eventbus.PublisherOption
	if cfg.Feed.Enabled {
		app.Feed = sse.NewManager(sse.ManagerConfig{
			Channels:          cfg.Feed.Channels,
			MaxConnections:    cfg.Feed.MaxConnections,
			ClientBuffer:      cfg.Feed.ClientBuffer,
			ReplayLimit:       cfg.Feed.ReplayLimit,
			HeartbeatInterval: cfg.Feed.HeartbeatInterval,
			DefaultRetryMS:    int(cfg.Feed.RetryInterval.Milliseconds()),
		}, nil, log)
		observe = append(observe, eventbus.WithObserver(app.Feed.Observe))
		if app.FeedHandler, err = sse.NewHandler(app.Feed); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("create feed handler: %w", err)
		}
	}
	app.Publisher, err = eventbusfactory.NewPublisher(cfg.EventBus, cfg.Service.Name, log, observe...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("create event publisher: %w", err)
	}

	opts := []catalog.Option{
		catalog.WithPublisher(app.Publisher),
		catalog.WithHasher(auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}),
	}
	if cfg.Auth.Enabled {
		app.Tokens, err = auth.NewTokenService(auth.TokenConfig{
			Secret: cfg.Auth.Secret,
			Issuer: cfg.Auth.Issuer,
			TTL:    cfg.Auth.TokenTTL,
		}, log)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("create token service: %w", err)
		}
		opts = append(opts, catalog.WithTokens(app.Tokens))
	}
	app.Catalog = catalog.New(st, catalog.ConfigFrom(cfg.Catalog), log, opts...)

	app.Health = health.NewRegistry()
	app.Health.Register(health.NewStoreChecker(st))
	app.Health.Register(health.NewEventBusChecker(app.Publisher))
	app.Health.Register(health.NewVariantBacklogChecker(app.Catalog.Linker()))
	return app, nil
}

// Routes registers the catalog API on r.
func (a *App) Routes(r router.Router) {
	opts := api.Options{AuthEnabled: a.Config.Auth.Enabled}
	if a.Tokens != nil {
		opts.Validator = a.Tokens
	}
	opts.Feed = a.FeedHandler
	api.Register(r, a.Catalog, opts, a.log)
}

// Close ends feed streams and releases the publisher and the store.
func (a *App) Close() error {
	var errs []error
	if a.Feed != nil {
		if err := a.Feed.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close feed: %w", err))
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RunServer wires the app and serves it until SIGINT or SIGTERM.
func RunServer(_ context.Context, cfg *config.Config, log logger.Logger) error {
	app, err := NewApp(cfg, log, nil)
	if err != nil {
		return err
	}
	opts := &server.RunHTTPServersOptions{
		Config:         cfg,
		Logger:         log,
		Routes:         app.Routes,
		HealthRegistry: app.Health,
		ShutdownHooks: []server.LifecycleHook{
			{Name: "close_catalog_dependencies", Fn: func(context.Context) error { return app.Close() }},
		},
	}
	servers, err := server.BuildHTTPServers(opts)
	if err != nil {
		_ = app.Close()
		return err
	}
	return server.RunHTTPServersWithSignals(servers, opts)
}

// NewStorefrontCommand builds the storefront CLI.
func NewStorefrontCommand() *cobra.Command {
	return NewServiceCommand(ServiceCommandOptions{
		Name:        ServiceName,
		Description: "Retail catalog API over a document store",
		EnvPrefix:   strings.ToUpper(ServiceName),
		RunServer:   RunServer,
		CustomCommands: func(load LoadFunc) []*cobra.Command {
			return []*cobra.Command{
				newStoreCommand(load),
				newVariantsCommand(load, nil),
				newHealthcheckCommand(load, nil),
			}
		},
	})
}

func newStoreCommand(load LoadFunc) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Document store maintenance",
	}
	SetCommandPolicies(storeCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnce})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the indexes (MongoDB) or the table (DynamoDB) listings need",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := store.InitDocumentStore(cmd.Context(), cfg.Database, catalog.OrderFields(), log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store initialized\n", cfg.Database.Type)
			return nil
		},
	}
	SetCommandPolicies(initCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnce})
	storeCmd.AddCommand(initCmd)
	return storeCmd
}

func newVariantsCommand(load LoadFunc, openStore StoreFactory) *cobra.Command {
	variantsCmd := &cobra.Command{
		Use:   "variants",
		Short: "Inspect and repair product variant groups",
	}
	SetCommandPolicies(variantsCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List variant groups whose back links were never written",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, load, openStore)
			if err != nil {
				return err
			}
			defer app.Close()

			groups, err := app.Catalog.Linker().Pending(cmd.Context())
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), groups)
		},
	}
	SetCommandPolicies(pendingCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})

	var (
		groupIDs    []string
		maxRetries  uint64
		maxInterval time.Duration
	)
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Write the back links of pending variant groups, retrying transient failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, load, openStore)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			ids := groupIDs
			if len(ids) == 0 {
				groups, err := app.Catalog.Linker().Pending(ctx)
				if err != nil {
					return err
				}
				for _, g := range groups {
					ids = append(ids, g.GroupID)
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending variant groups")
				return nil
			}

			var failed []string
			for _, id := range ids {
				if err := reconcileGroup(ctx, app, id, maxRetries, maxInterval); err != nil {
					app.log.Error("variant group not reconciled", "group_id", id, "error", err)
					failed = append(failed, id)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reconciled %s\n", id)
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d variant groups not reconciled: %s", len(failed), len(ids), strings.Join(failed, ", "))
			}
			return nil
		},
	}
	reconcileCmd.Flags().StringSliceVar(&groupIDs, "group", nil, "group ids to reconcile (default: every pending group)")
	reconcileCmd.Flags().Uint64Var(&maxRetries, "max-retries", 5, "retries per group on transient store errors")
	reconcileCmd.Flags().DurationVar(&maxInterval, "max-interval", 10*time.Second, "maximum wait between retries")
	SetCommandPolicies(reconcileCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})

	variantsCmd.AddCommand(pendingCmd, reconcileCmd)
	return variantsCmd
}

// reconcileGroup retries Reconcile with exponential backoff. Errors that a
// retry cannot fix stop it at once.
func reconcileGroup(ctx context.Context, app *App, groupID string, maxRetries uint64, maxInterval time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	if maxInterval > 0 {
		policy.MaxInterval = maxInterval
	}
	operation := func() error {
		_, err := app.Catalog.Linker().Reconcile(ctx, groupID)
		if err == nil {
			return nil
		}
		switch document.KindOf(err) {
		case document.InvalidArgument, document.NotFound:
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		app.log.Warn("variant reconcile failed, retrying", "group_id", groupID, "wait", wait, "error", err)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx), notify)
}

func newHealthcheckCommand(load LoadFunc, openStore StoreFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the document store, the event bus and the variant backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, load, openStore)
			if err != nil {
				return err
			}
			defer app.Close()

			result := app.Health.Check(cmd.Context())
			if err := writeYAML(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsReady() {
				return fmt.Errorf("service not ready: %s", result.Status)
			}
			return nil
		},
	}
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	return cmd
}

func openApp(cmd *cobra.Command, load LoadFunc, openStore StoreFactory) (*App, error) {
	cfg, log, err := load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, log, openStore)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
