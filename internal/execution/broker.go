package execution

import (
	"context"

	"swingbot/pkg/smartconnect"
)

// Broker is the order surface the engine needs. The live implementation
// talks to Angel One through smartconnect; the paper implementation fills
// everything locally.
type Broker interface {
	PlaceOrder(ctx context.Context, p smartconnect.OrderParams) (smartconnect.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, orderID, variety string) error
	OrderBook(ctx context.Context) ([]smartconnect.OrderRecord, error)
}

// LiveBroker routes orders to the real broker API, renewing the session
// before each call.
type LiveBroker struct {
	Client *smartconnect.Client
	Creds  smartconnect.Credentials
}

func (b *LiveBroker) PlaceOrder(ctx context.Context, p smartconnect.OrderParams) (smartconnect.PlaceOrderResult, error) {
	if err := b.Client.EnsureSession(ctx, b.Creds); err != nil {
		return smartconnect.PlaceOrderResult{}, err
	}
	return b.Client.PlaceOrder(ctx, p)
}

func (b *LiveBroker) CancelOrder(ctx context.Context, orderID, variety string) error {
	if err := b.Client.EnsureSession(ctx, b.Creds); err != nil {
		return err
	}
	return b.Client.CancelOrder(ctx, orderID, variety)
}

func (b *LiveBroker) OrderBook(ctx context.Context) ([]smartconnect.OrderRecord, error) {
	if err := b.Client.EnsureSession(ctx, b.Creds); err != nil {
		return nil, err
	}
	return b.Client.OrderBook(ctx)
}
