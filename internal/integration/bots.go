package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

// BotClient implements risk.BotService against the automation service.
type BotClient struct {
	client *resty.Client
}

func NewBotClient(baseURL string, timeout time.Duration) *BotClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BotClient{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
	}
}

type botResponse struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
}

type botListResponse struct {
	Bots []botResponse `json:"bots"`
}

func (c *BotClient) OwnerOf(ctx context.Context, botID uuid.UUID) (uuid.UUID, error) {
	var out botResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/internal/v1/bots/%s", botID))
	if err != nil {
		return uuid.Nil, errors.Unavailable.Explain("bot service unreachable").Wrap(err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return uuid.Nil, errors.NotFound.Explain("bot %s not found", botID)
	}
	if resp.IsError() {
		return uuid.Nil, errors.Unavailable.Explain("bot service returned %s", resp.Status())
	}
	return out.UserID, nil
}

func (c *BotClient) ActiveBots(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var out botListResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetQueryParam("status", "active").
		Get(fmt.Sprintf("/internal/v1/users/%s/bots", userID))
	if err != nil {
		return nil, errors.Unavailable.Explain("bot service unreachable").Wrap(err)
	}
	if resp.IsError() {
		return nil, errors.Unavailable.Explain("bot service returned %s", resp.Status())
	}
	ids := make([]uuid.UUID, 0, len(out.Bots))
	for _, bot := range out.Bots {
		ids = append(ids, bot.ID)
	}
	return ids, nil
}

func (c *BotClient) StopBot(ctx context.Context, botID uuid.UUID) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/internal/v1/bots/%s/stop", botID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("bot stop returned %s", resp.Status())
	}
	return nil
}
