package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/pkg/errors"
	"github.com/Aidin1998/riskcore/pkg/metrics"
)

// GlobalKillSwitchResult reports how many stop/cancel requests succeeded
// during a global activation.
type GlobalKillSwitchResult struct {
	StoppedBots     int `json:"stopped_bots"`
	CancelledOrders int `json:"cancelled_orders"`
}

// KillSwitchController implements the two-level emergency stop. The halt flag
// is always written before any stop/cancel request goes out, so an order
// racing the activation is rejected by the enforcement gate's halt check.
type KillSwitchController struct {
	halts   HaltStore
	bots    BotService
	orders  OrderService
	events  EventPublisher
	logger  *zap.Logger
	workers int
	retries int
}

// NewKillSwitchController creates a controller. workers bounds the
// cancellation fan-out concurrency; retries is the per-item retry budget for
// transient failures.
func NewKillSwitchController(
	halts HaltStore,
	bots BotService,
	orders OrderService,
	events EventPublisher,
	workers, retries int,
	logger *zap.Logger,
) *KillSwitchController {
	if workers <= 0 {
		workers = 8
	}
	if retries < 0 {
		retries = 0
	}
	return &KillSwitchController{
		halts:   halts,
		bots:    bots,
		orders:  orders,
		events:  events,
		logger:  logger.Named("kill-switch"),
		workers: workers,
		retries: retries,
	}
}

// ActivateBot halts a single bot: verify ownership, set the bot-scoped halt
// flag, then stop the bot and cancel its open orders. Re-activating an
// already-halted bot is a no-op that still runs the stop/cancel fan-out.
func (c *KillSwitchController) ActivateBot(ctx context.Context, botID, userID uuid.UUID, reason string) error {
	owner, err := c.bots.OwnerOf(ctx, botID)
	if err != nil {
		return err
	}
	if owner != userID {
		return errors.Unauthorized.Explain("bot %s does not belong to user %s", botID, userID)
	}

	state := HaltState{Reason: reason, ActivatedAt: time.Now().UTC()}
	set, err := c.halts.ActivateBot(ctx, userID, botID, state)
	if err != nil {
		return errors.Unavailable.Explain("halt store unavailable").Wrap(err)
	}
	if !set {
		c.logger.Info("bot already halted",
			zap.String("bot_id", botID.String()),
			zap.String("user_id", userID.String()),
		)
	}
	metrics.KillSwitchActivations.WithLabelValues("bot").Inc()

	if err := c.stopWithRetry(ctx, botID); err != nil {
		c.logger.Error("failed to stop bot after halt",
			zap.String("bot_id", botID.String()), zap.Error(err))
		metrics.KillSwitchFanout.WithLabelValues("bot", "failure").Inc()
	} else {
		metrics.KillSwitchFanout.WithLabelValues("bot", "success").Inc()
	}

	orders, err := c.orders.OpenOrdersForBot(ctx, botID)
	if err != nil {
		return errors.Unavailable.Explain("open orders unavailable").Wrap(err)
	}
	c.cancelAll(ctx, orders)

	c.publish(ctx, BotKillSwitchActivated{
		BotID:      botID,
		UserID:     userID,
		Reason:     reason,
		OccurredAt: state.ActivatedAt,
	})
	return nil
}

// ActivateGlobal halts all trading for a user: set the user-scoped halt flag
// first, then stop every active bot and cancel every open order across the
// user's exchange connections with bounded concurrency. The returned counts
// reflect requests that actually succeeded.
func (c *KillSwitchController) ActivateGlobal(ctx context.Context, userID uuid.UUID, reason string) (*GlobalKillSwitchResult, error) {
	state := HaltState{Reason: reason, ActivatedAt: time.Now().UTC()}
	set, err := c.halts.ActivateUser(ctx, userID, state)
	if err != nil {
		return nil, errors.Unavailable.Explain("halt store unavailable").Wrap(err)
	}
	if !set {
		c.logger.Info("user already halted", zap.String("user_id", userID.String()))
	}
	metrics.KillSwitchActivations.WithLabelValues("global").Inc()

	bots, err := c.bots.ActiveBots(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable.Explain("active bots unavailable").Wrap(err)
	}
	orders, err := c.orders.OpenOrders(ctx, userID)
	if err != nil {
		return nil, errors.Unavailable.Explain("open orders unavailable").Wrap(err)
	}

	stopped := c.stopAll(ctx, bots)
	cancelled := c.cancelAll(ctx, orders)

	result := &GlobalKillSwitchResult{StoppedBots: stopped, CancelledOrders: cancelled}
	c.publish(ctx, GlobalKillSwitchActivated{
		UserID:          userID,
		Reason:          reason,
		StoppedBots:     stopped,
		CancelledOrders: cancelled,
		OccurredAt:      state.ActivatedAt,
	})
	c.logger.Info("global kill switch activated",
		zap.String("user_id", userID.String()),
		zap.String("reason", reason),
		zap.Int("stopped_bots", stopped),
		zap.Int("cancelled_orders", cancelled),
	)
	return result, nil
}

// Deactivate clears a halt flag. It is a separately-authorized operation; the
// HTTP layer restricts it to operators.
func (c *KillSwitchController) Deactivate(ctx context.Context, userID uuid.UUID, botID *uuid.UUID) error {
	var err error
	if botID != nil {
		err = c.halts.DeactivateBot(ctx, userID, *botID)
	} else {
		err = c.halts.DeactivateUser(ctx, userID)
	}
	if err != nil {
		return errors.Unavailable.Explain("halt store unavailable").Wrap(err)
	}

	c.publish(ctx, KillSwitchDeactivated{
		UserID:     userID,
		BotID:      botID,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// stopAll requests every bot to stop, bounded by the worker count. Failures
// on one bot never abort the others.
func (c *KillSwitchController) stopAll(ctx context.Context, bots []uuid.UUID) int {
	var stopped atomic.Int64
	c.fanOut(len(bots), func(i int) {
		if err := c.stopWithRetry(ctx, bots[i]); err != nil {
			c.logger.Warn("bot stop failed",
				zap.String("bot_id", bots[i].String()), zap.Error(err))
			metrics.KillSwitchFanout.WithLabelValues("bot", "failure").Inc()
			return
		}
		stopped.Add(1)
		metrics.KillSwitchFanout.WithLabelValues("bot", "success").Inc()
	})
	return int(stopped.Load())
}

// cancelAll attempts to cancel every order, bounded by the worker count, and
// returns the number of successful cancellations.
func (c *KillSwitchController) cancelAll(ctx context.Context, orders []OpenOrder) int {
	var cancelled atomic.Int64
	c.fanOut(len(orders), func(i int) {
		if err := c.cancelWithRetry(ctx, orders[i].ID); err != nil {
			c.logger.Warn("order cancellation failed",
				zap.String("order_id", orders[i].ID.String()),
				zap.String("exchange", orders[i].Exchange),
				zap.Error(err))
			metrics.KillSwitchFanout.WithLabelValues("order", "failure").Inc()
			return
		}
		cancelled.Add(1)
		metrics.KillSwitchFanout.WithLabelValues("order", "success").Inc()
	})
	return int(cancelled.Load())
}

// fanOut runs fn for indices [0,n) on a bounded worker pool and waits for
// every attempt to settle.
func (c *KillSwitchController) fanOut(n int, fn func(i int)) {
	if n == 0 {
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := c.workers
	if workers > n {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (c *KillSwitchController) stopWithRetry(ctx context.Context, botID uuid.UUID) error {
	return c.withRetry(ctx, func() error { return c.bots.StopBot(ctx, botID) })
}

func (c *KillSwitchController) cancelWithRetry(ctx context.Context, orderID uuid.UUID) error {
	return c.withRetry(ctx, func() error { return c.orders.CancelOrder(ctx, orderID) })
}

// withRetry retries transient failures a fixed number of times with a short
// backoff. Context cancellation stops further attempts.
func (c *KillSwitchController) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func (c *KillSwitchController) publish(ctx context.Context, event Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Error("failed to publish kill switch event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}
