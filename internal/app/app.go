package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/niksmo/smart-catalog/config"
	"github.com/niksmo/smart-catalog/internal/adapter"
	"github.com/niksmo/smart-catalog/internal/adapter/httphandler"
	"github.com/niksmo/smart-catalog/internal/adapter/kafka"
	"github.com/niksmo/smart-catalog/internal/adapter/llm"
	"github.com/niksmo/smart-catalog/internal/adapter/storage"
	"github.com/niksmo/smart-catalog/internal/core/catalog"
	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
	"github.com/niksmo/smart-catalog/internal/core/search"
	"github.com/niksmo/smart-catalog/internal/core/service"
	"github.com/niksmo/smart-catalog/pkg/schema"
	"github.com/twmb/franz-go/pkg/sr"
	"golang.org/x/sync/errgroup"
)

type outbound struct {
	generator      *llm.Generator
	eventsProducer *kafka.SearchEventsProducer
}

type App struct {
	ctx        context.Context
	cfg        config.Config
	catalog    *catalog.Catalog
	outbound   outbound
	service    service.Service
	httpServer httphandler.HTTPServer
}

func New(ctx context.Context, cfg config.Config) *App {
	app := &App{ctx: ctx, cfg: cfg}

	app.initLogger()
	app.initCatalog()
	app.initOutboundAdapters()
	app.initCoreService()
	app.initInboundAdapters()

	return app
}

func (app *App) initLogger() {
	opts := &slog.HandlerOptions{Level: app.cfg.LogLevel}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, opts))
	slog.SetDefault(logger)
}

func (app *App) initCatalog() {
	const op = "App.initCatalog"
	log := slog.With("op", op)

	reader, closeFn, err := app.productsReader()
	if err != nil {
		app.fallDown(op, err)
	}
	defer closeFn()

	products, err := reader.ReadProducts(app.ctx)
	if err != nil {
		app.fallDown(op, fmt.Errorf("%w: %w", domain.ErrConfig, err))
	}

	c, err := catalog.New(products)
	if err != nil {
		app.fallDown(op, err)
	}
	app.catalog = c

	log.Info(
		"catalog is loaded",
		"source", app.cfg.Catalog.Source,
		"nProducts", c.Len(),
		"nCategories", len(c.Categories()),
	)
}

// productsReader returns the configured catalog source. closeFn releases
// the source once the catalog snapshot is built.
func (app *App) productsReader() (port.ProductsReader, func(), error) {
	switch app.cfg.Catalog.Source {
	case config.SourcePostgres:
		db, err := storage.NewSQLDB(app.ctx, app.cfg.Catalog.SQLDB)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", domain.ErrConfig, err)
		}
		return storage.NewProductsRepository(db), db.Close, nil
	default:
		return storage.NewFileRepository(app.cfg.Catalog.Path), func() {}, nil
	}
}

// initOutboundAdapters builds the provider client and the events
// producer concurrently. The producer blocks on the broker and the
// schema registry at boot.
func (app *App) initOutboundAdapters() {
	const op = "App.initOutboundAdapters"

	g, gctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		gen, err := app.newGenerator()
		if err != nil {
			return err
		}
		app.outbound.generator = gen
		return nil
	})

	g.Go(func() error {
		producer, err := app.newEventsProducer(gctx)
		if err != nil {
			return err
		}
		app.outbound.eventsProducer = producer
		return nil
	})

	if err := g.Wait(); err != nil {
		app.closeOutbound()
		app.fallDown(op, err)
	}
}

// newGenerator returns nil when the AI path is off.
func (app *App) newGenerator() (*llm.Generator, error) {
	const op = "App.newGenerator"
	log := slog.With("op", op)

	llmCfg := app.cfg.LLM
	if !llmCfg.Enabled {
		log.Info("ai search is disabled by config")
		return nil, nil
	}

	gen, err := llm.NewGenerator(llm.Config{
		Provider: llmCfg.Provider,
		Model:    llmCfg.Model,
		BaseURL:  llmCfg.BaseURL,
		APIKey:   llmCfg.APIKey,
	})
	if errors.Is(err, llm.ErrNoAPIKey) {
		log.Info(
			"ai search is disabled, api key is not set",
			"env", llmCfg.APIKeyEnv,
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrConfig, err)
	}

	log.Info("ai search is enabled", "provider", llmCfg.Provider)
	return gen, nil
}

// newEventsProducer returns nil when no seed brokers are configured.
func (app *App) newEventsProducer(
	ctx context.Context,
) (*kafka.SearchEventsProducer, error) {
	const op = "App.newEventsProducer"
	log := slog.With("op", op)

	brokerCfg := app.cfg.Broker
	if !brokerCfg.Enabled() {
		log.Info("search events are disabled, no seed brokers")
		return nil, nil
	}

	var tlsCfg *tls.Config
	if t := brokerCfg.TLS; t.Enabled() {
		var err error
		tlsCfg, err = adapter.MakeTLSConfig(t.CA, t.Cert, t.Key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	srClient, err := sr.NewClient(sr.URLs(brokerCfg.SchemaRegistryURLs...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	topic := brokerCfg.Topics.SearchEvents
	serde, err := schema.NewSerdeSearchEventV1(
		ctx,
		schema.SubjectOpt(topic+"-value"),
		schema.SchemaIdentifierOpt(schema.NewSchemaCreater(srClient)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	producer, err := kafka.NewSearchEventsProducer(
		kafka.ProducerClientOpt(ctx, brokerCfg.SeedBrokers, topic, tlsCfg),
		kafka.ProducerEncoderOpt(serde),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("search events are enabled", "topic", topic)
	return producer, nil
}

func (app *App) initCoreService() {
	var opts []service.Opt
	if gen := app.outbound.generator; gen != nil {
		opts = append(opts, service.AISearcherOpt(
			search.NewAISearcher(gen), app.cfg.LLM.Timeout,
		))
	}
	if p := app.outbound.eventsProducer; p != nil {
		opts = append(opts, service.SearchEventsProducerOpt(
			p, app.cfg.Broker.ProduceTimeout,
		))
	}
	app.service = service.New(app.catalog, opts...)
}

func (app *App) initInboundAdapters() {
	addr := app.cfg.HTTPServerAddr
	mux := http.NewServeMux()
	httphandler.RegisterProducts(mux, app.service, app.service)
	httphandler.RegisterSearch(mux, app.service)
	httphandler.RegisterHealth(mux)

	handler := httphandler.LogRequests(httphandler.AllowJSON(mux))
	app.httpServer = httphandler.NewHTTPServer(
		addr, handler, app.cfg.HTTPHandlerTimeout,
	)
}

func (app *App) Run(stopFn context.CancelFunc) {
	go app.httpServer.Run(stopFn)

	slog.Info("application is running", "aiEnabled", app.service.AIEnabled())
}

func (app *App) Close(ctx context.Context) {
	slog.Info("application is closing...")

	app.httpServer.Close(ctx)
	app.service.Close(ctx)
	app.closeOutbound()

	slog.Info("application is closed")
}

func (app *App) closeOutbound() {
	if p := app.outbound.eventsProducer; p != nil {
		p.Close()
	}
	if gen := app.outbound.generator; gen != nil {
		gen.Close()
	}
}

func (app *App) fallDown(op string, err error) {
	panic(fmt.Errorf("%s: %w", op, err))
}
