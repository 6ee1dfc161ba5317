package app

import (
	"context"
	"errors"
	"net/http"

	"fulfillment/internal/breaker"
	"fulfillment/internal/events"
	"fulfillment/internal/inventory"
	"fulfillment/internal/notify"
	"fulfillment/internal/order"
	"fulfillment/internal/orchestrator"
	"fulfillment/internal/payment"
	"fulfillment/internal/stock"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ServiceFactory creates business logic services with their dependencies
type ServiceFactory struct {
	c *Container
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(c *Container) *ServiceFactory {
	return &ServiceFactory{c: c}
}

func (f *ServiceFactory) CreatePublisher() *events.Publisher {
	return events.NewPublisher(f.c.MessageProducer(), f.c.Logger())
}

// CreateInventoryService builds the reservation pipeline over the configured
// ledger. Reviews always live in SQLite.
func (f *ServiceFactory) CreateInventoryService(ctx context.Context) (*inventory.Service, error) {
	cfg := f.c.Config()
	ledger, err := f.c.StockLedger(ctx)
	if err != nil {
		return nil, err
	}
	checks := inventory.DefaultChecks(ledger, cfg.MaxUnitsPerOrder, cfg.QuarantinedSKUs)
	pipeline := inventory.NewPipeline(ledger, f.c.Logger(), f.c.Tracer(), checks...)
	return inventory.NewService(pipeline, ledger, f.c.DB().Reviews(), f.c.Logger(), f.c.Tracer()), nil
}

func (f *ServiceFactory) CreateInventoryMessageHandler(service *inventory.Service) *inventory.MessageHandler {
	return inventory.NewMessageHandler(service, f.CreatePublisher(), f.c.Logger())
}

func (f *ServiceFactory) CreateOrchestrator() *orchestrator.Orchestrator {
	cfg := f.c.Config()
	httpClient := &http.Client{}
	return orchestrator.New(
		orchestrator.NewHTTPInventoryClient(cfg.InventoryURL, httpClient),
		orchestrator.NewHTTPPaymentClient(cfg.PaymentURL, httpClient),
		breaker.New("inventory", cfg.Breaker, f.c.Logger()),
		breaker.New("payment", cfg.Breaker, f.c.Logger()),
		f.c.Logger(),
		f.c.Tracer(),
	)
}

// CreateOrderService wires the state machine to SQLite, the orchestrator and the
// notification sink. The sink is returned so shutdown can drain it.
func (f *ServiceFactory) CreateOrderService() (*order.Service, *notify.Sink, error) {
	transport, err := f.c.NotificationTransport()
	if err != nil {
		return nil, nil, err
	}
	sink := notify.NewSink(transport, f.c.Logger())
	svc := order.NewService(
		order.Mode(f.c.Config().SagaMode),
		f.c.DB().Orders(),
		f.CreateOrchestrator(),
		f.CreatePublisher(),
		sink,
		f.c.Logger(),
		f.c.Tracer(),
	)
	return svc, sink, nil
}

func (f *ServiceFactory) CreateOrderMessageHandler(service *order.Service) *order.MessageHandler {
	return order.NewMessageHandler(service, f.c.Logger())
}

func (f *ServiceFactory) CreatePaymentGateway() *payment.Gateway {
	db := f.c.DB()
	return payment.NewGateway(db.Wallets(), db.PaymentRecords(), f.c.Logger(), f.c.Tracer())
}

var demoCatalogue = []stock.Item{
	{SKU: "IPHONE15", Name: "iPhone 15", Quantity: 50},
	{SKU: "MACBOOK", Name: "MacBook Air", Quantity: 20},
	{SKU: "HEADPHONES", Name: "Noise-cancelling headphones", Quantity: 100},
	{SKU: "TSHIRT", Name: "Logo T-shirt", Quantity: 0},
}

// SeedInventory loads the demo catalogue when the ledger is empty.
func (f *ServiceFactory) SeedInventory(ctx context.Context, service *inventory.Service) error {
	items, err := service.Products(ctx)
	if err != nil || len(items) > 0 {
		return err
	}
	for _, it := range demoCatalogue {
		if _, err := service.AddProduct(ctx, it); err != nil {
			return err
		}
	}
	f.c.Logger().Info("Seeded demo catalogue", zap.Int("products", len(demoCatalogue)))
	return nil
}

// SeedWallets opens the demo customer wallet if it does not exist.
func (f *ServiceFactory) SeedWallets(ctx context.Context, gateway *payment.Gateway) error {
	_, err := gateway.CreateWallet(ctx, "john_doe", decimal.NewFromInt(1000))
	if errors.Is(err, payment.ErrWalletExists) {
		return nil
	}
	return err
}
