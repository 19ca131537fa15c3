package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/Aidin1998/riskcore/internal/risk"
	"github.com/Aidin1998/riskcore/pkg/errors"
)

// OrderClient implements risk.OrderService against the order management
// service, which fans cancellations out to the user's exchange connections.
type OrderClient struct {
	client *resty.Client
}

func NewOrderClient(baseURL string, timeout time.Duration) *OrderClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OrderClient{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

type openOrdersResponse struct {
	Orders []risk.OpenOrder `json:"orders"`
}

func (c *OrderClient) OpenOrders(ctx context.Context, userID uuid.UUID) ([]risk.OpenOrder, error) {
	var out openOrdersResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/internal/v1/users/%s/orders/open", userID))
	if err != nil {
		return nil, errors.Unavailable.Explain("order service unreachable").Wrap(err)
	}
	if resp.IsError() {
		return nil, errors.Unavailable.Explain("order service returned %s", resp.Status())
	}
	return out.Orders, nil
}

func (c *OrderClient) OpenOrdersForBot(ctx context.Context, botID uuid.UUID) ([]risk.OpenOrder, error) {
	var out openOrdersResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/internal/v1/bots/%s/orders/open", botID))
	if err != nil {
		return nil, errors.Unavailable.Explain("order service unreachable").Wrap(err)
	}
	if resp.IsError() {
		return nil, errors.Unavailable.Explain("order service returned %s", resp.Status())
	}
	return out.Orders, nil
}

func (c *OrderClient) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/internal/v1/orders/%s", orderID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("order cancellation returned %s", resp.Status())
	}
	return nil
}
