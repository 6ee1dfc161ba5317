package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fulfillment/internal/config"
	"fulfillment/internal/events"
	"fulfillment/internal/httpapi"
	"fulfillment/internal/notify"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx         context.Context
	cancel      context.CancelFunc
	container   *Container
	handler     http.Handler
	dispatchers []*events.Dispatcher
	sink        *notify.Sink
}

// NewApplication creates and fully initializes the named service
func NewApplication(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:    appCtx,
		cancel: cancel,
	}

	container, err := NewContainer(app.ctx, cfg, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	app.container = container

	if err := app.wire(); err != nil {
		app.Shutdown()
		return nil, err
	}

	app.container.Logger().Info("Application initialized successfully", zap.String("service", cfg.ServiceName))
	return app, nil
}

func (app *Application) wire() error {
	cfg := app.container.Config()
	factory := NewServiceFactory(app.container)
	mux := http.NewServeMux()

	switch cfg.ServiceName {
	case config.InventoryServiceName:
		service, err := factory.CreateInventoryService(app.ctx)
		if err != nil {
			return err
		}
		if cfg.SeedData {
			if err := factory.SeedInventory(app.ctx, service); err != nil {
				return fmt.Errorf("seed inventory: %w", err)
			}
		}
		if err := app.consume(config.OrderCreatedTopic, config.InventoryGroupID,
			factory.CreateInventoryMessageHandler(service).HandleOrderCreated); err != nil {
			return err
		}
		httpapi.NewInventoryHandlers(service, app.container.Logger()).Register(mux)

	case config.OrderServiceName:
		service, sink, err := factory.CreateOrderService()
		if err != nil {
			return err
		}
		app.sink = sink
		if err := app.consume(config.InventoryOutcomeTopic, config.OrderGroupID,
			factory.CreateOrderMessageHandler(service).HandleInventoryOutcome); err != nil {
			return err
		}
		httpapi.NewOrderHandlers(service, app.container.Logger()).Register(mux)

	case config.PaymentServiceName:
		gateway := factory.CreatePaymentGateway()
		if cfg.SeedData {
			if err := factory.SeedWallets(app.ctx, gateway); err != nil {
				return fmt.Errorf("seed wallets: %w", err)
			}
		}
		httpapi.NewPaymentHandlers(gateway).Register(mux)

	default:
		return fmt.Errorf("unknown service %q", cfg.ServiceName)
	}

	app.handler = httpapi.Wrap(mux, app.container.Logger())
	return nil
}

func (app *Application) consume(topic, groupID string, handler events.Handler) error {
	consumer, err := app.container.NewConsumer(topic, groupID)
	if err != nil {
		return err
	}
	d := events.NewDispatcher(topic, consumer, handler, app.container.Config().DispatchWorkers, app.container.Logger())
	app.dispatchers = append(app.dispatchers, d)
	return nil
}

// Handler exposes the service's HTTP surface.
func (app *Application) Handler() http.Handler { return app.handler }

// Start runs the event consumers in the background without serving HTTP.
// It returns a wait function that blocks until they stop.
func (app *Application) Start() func() error {
	g, ctx := errgroup.WithContext(app.ctx)
	for _, d := range app.dispatchers {
		g.Go(func() error { return d.Start(ctx) })
	}
	return g.Wait
}

// Run serves HTTP and consumes events until the context is cancelled or a
// component fails.
func (app *Application) Run() error {
	cfg := app.container.Config()
	logger := app.container.Logger()

	g, ctx := errgroup.WithContext(app.ctx)
	for _, d := range app.dispatchers {
		g.Go(func() error { return d.Start(ctx) })
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: app.handler}
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.sink != nil {
		app.sink.Wait()
	}

	if app.container != nil {
		app.container.Shutdown(context.Background())
	}
}
