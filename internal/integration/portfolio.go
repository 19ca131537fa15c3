// Package integration contains HTTP clients for the external collaborators
// the risk core depends on: the portfolio service, the bot automation service
// and the order management service.
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/riskcore/internal/risk"
)

// PortfolioClient implements risk.PortfolioProvider and
// risk.TradeHistoryProvider against the portfolio service's REST API. Every
// call is time-bounded; a timeout surfaces to the caller as an external
// dependency failure, never as an implicit gate decision.
type PortfolioClient struct {
	client *resty.Client
}

func NewPortfolioClient(baseURL string, timeout time.Duration) *PortfolioClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2)
	return &PortfolioClient{client: client}
}

type positionsResponse struct {
	Positions []risk.Position `json:"positions"`
}

type portfolioValueResponse struct {
	Value decimal.Decimal `json:"value"`
}

func (c *PortfolioClient) Positions(ctx context.Context, userID uuid.UUID) ([]risk.Position, error) {
	var out positionsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/internal/v1/portfolio/%s/positions", userID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("portfolio service returned %s", resp.Status())
	}
	return out.Positions, nil
}

func (c *PortfolioClient) PortfolioValue(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var out portfolioValueResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/internal/v1/portfolio/%s/value", userID))
	if err != nil {
		return decimal.Zero, err
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("portfolio service returned %s", resp.Status())
	}
	return out.Value, nil
}

func (c *PortfolioClient) TradeHistory(ctx context.Context, userID uuid.UUID) (*risk.TradeHistory, error) {
	var out risk.TradeHistory
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/internal/v1/portfolio/%s/history", userID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("portfolio service returned %s", resp.Status())
	}
	return &out, nil
}
