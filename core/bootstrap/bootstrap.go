// Package bootstrap wires configuration into a runnable relay: logger,
// metrics, form catalog, conversation tracker and the selected transport.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/formrelay/core/config"
	"github.com/m3rciful/formrelay/core/conversation"
	"github.com/m3rciful/formrelay/core/forms"
	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/messenger"
	"github.com/m3rciful/formrelay/core/metrics"
	"github.com/m3rciful/formrelay/core/netutil"
	"github.com/m3rciful/formrelay/core/sender"
	"github.com/m3rciful/formrelay/core/server"
	coretelegram "github.com/m3rciful/formrelay/core/telegram"
	"github.com/m3rciful/formrelay/core/telegram/router"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	// HTTPClient is used for the form source, submissions and the Send API.
	HTTPClient *http.Client
	// RunTelegram replaces coretelegram.RunTelegram, mainly for tests.
	RunTelegram func(ctx context.Context, opts coretelegram.RunOptions) error
}

// App holds every long-lived component of the relay.
type App struct {
	Config     *coreconfig.Config
	Metrics    *metrics.Metrics
	Catalog    *forms.Catalog
	Tracker    *conversation.Tracker
	Dispatcher *sender.Dispatcher

	client      *http.Client
	runTelegram func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run initializes the logger and builds the application graph. Nothing is
// fetched or served until Serve.
func Run(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	client := opts.HTTPClient
	if client == nil {
		client = netutil.NewHTTPClient(netutil.ClientOptions{})
	}

	m := metrics.New()

	selection := forms.SelectExcludeLast
	if cfg.Forms.SelectUniform {
		selection = forms.SelectUniform
	}
	catalog := forms.NewCatalog(forms.CatalogOptions{
		SourceURL: cfg.Forms.SourceURL,
		Client:    client,
		Selection: selection,
		Observer:  m,
	})

	tracker := conversation.NewTracker(conversation.Options{
		Forms:     catalog,
		Submitter: forms.NewHTTPSubmitter(client, cfg.Forms.SubmitTimeout),
		Observer:  m,
	})

	runTelegram := opts.RunTelegram
	if runTelegram == nil {
		runTelegram = coretelegram.RunTelegram
	}

	return &App{
		Config:      cfg,
		Metrics:     m,
		Catalog:     catalog,
		Tracker:     tracker,
		Dispatcher:  sender.NewDispatcher(sender.Options{MaxRetries: 2, Observer: m}),
		client:      client,
		runTelegram: runTelegram,
	}, nil
}

// Serve starts the catalog load and the configured transport, and blocks
// until ctx is done or a component fails.
func (a *App) Serve(ctx context.Context) error {
	a.Catalog.LoadAsync(ctx)

	switch a.Config.Transport {
	case coreconfig.TransportTelegram:
		return a.serveTelegram(ctx)
	default:
		return a.serveMessenger(ctx)
	}
}

func (a *App) serveMessenger(ctx context.Context) error {
	mcfg := a.Config.Messenger
	client := messenger.NewClient(mcfg.GraphURL, mcfg.Token, a.client)
	webhook := messenger.NewHandler(messenger.HandlerOptions{
		VerifyToken:   mcfg.VerifyToken,
		AppSecret:     mcfg.AppSecret,
		Conversations: a.Tracker,
		Sender:        client,
		Endpoint:      client.Endpoint(),
		Queue:         a.Dispatcher,
		Observer:      a.Metrics,
	})
	if mcfg.AppSecret == "" {
		logger.MSG.LogAttrs(ctx, slog.LevelWarn, "webhook signatures not checked",
			slog.String("event", "messenger.signature"),
			slog.String("status", "skip"),
		)
	}

	srv := a.newServer(mcfg.WebhookPath, webhook.Routes())
	err := srv.Run(ctx)
	webhook.Wait()
	a.Dispatcher.Close()
	return err
}

func (a *App) serveTelegram(ctx context.Context) error {
	srv := a.newServer("", nil)
	routeOpts := router.Options{Conversations: a.Tracker, Observer: a.Metrics}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return a.runTelegram(gctx, coretelegram.RunOptions{
			Config:      a.Config,
			Dispatcher:  a.Dispatcher,
			Middlewares: coretelegram.DefaultMiddlewares(),
			Routes: append(router.TextRoutes(routeOpts),
				router.CallbackRoute(routeOpts),
			),
		})
	})
	return g.Wait()
}

func (a *App) newServer(webhookPath string, webhook http.Handler) *server.Server {
	return server.New(server.Options{
		Addr:        a.Config.Server.Addr(),
		WebhookPath: webhookPath,
		Webhook:     webhook,
		Metrics:     a.Metrics.Handler(),
		Forms:       a.Catalog.Len,
		Active:      a.Tracker.Active,
	})
}
