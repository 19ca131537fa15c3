package risk

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

type fakeBotService struct {
	mu       sync.Mutex
	owners   map[uuid.UUID]uuid.UUID
	active   map[uuid.UUID][]uuid.UUID
	stopped  []uuid.UUID
	failBots map[uuid.UUID]int // remaining failures per bot
}

func newFakeBotService() *fakeBotService {
	return &fakeBotService{
		owners:   make(map[uuid.UUID]uuid.UUID),
		active:   make(map[uuid.UUID][]uuid.UUID),
		failBots: make(map[uuid.UUID]int),
	}
}

func (b *fakeBotService) OwnerOf(ctx context.Context, botID uuid.UUID) (uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner, ok := b.owners[botID]
	if !ok {
		return uuid.Nil, errors.NotFound.Explain("bot %s not found", botID)
	}
	return owner, nil
}

func (b *fakeBotService) ActiveBots(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[userID], nil
}

func (b *fakeBotService) StopBot(ctx context.Context, botID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining := b.failBots[botID]; remaining > 0 {
		b.failBots[botID] = remaining - 1
		return errTransient
	}
	b.stopped = append(b.stopped, botID)
	return nil
}

type fakeOrderService struct {
	mu         sync.Mutex
	userOrders map[uuid.UUID][]OpenOrder
	botOrders  map[uuid.UUID][]OpenOrder
	cancelled  []uuid.UUID
	failOrders map[uuid.UUID]int
}

func newFakeOrderService() *fakeOrderService {
	return &fakeOrderService{
		userOrders: make(map[uuid.UUID][]OpenOrder),
		botOrders:  make(map[uuid.UUID][]OpenOrder),
		failOrders: make(map[uuid.UUID]int),
	}
}

func (o *fakeOrderService) OpenOrders(ctx context.Context, userID uuid.UUID) ([]OpenOrder, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userOrders[userID], nil
}

func (o *fakeOrderService) OpenOrdersForBot(ctx context.Context, botID uuid.UUID) ([]OpenOrder, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.botOrders[botID], nil
}

func (o *fakeOrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if remaining := o.failOrders[orderID]; remaining > 0 {
		o.failOrders[orderID] = remaining - 1
		return errTransient
	}
	o.cancelled = append(o.cancelled, orderID)
	return nil
}

var errTransient = errors.New("transient collaborator failure")

// KillSwitchTestSuite exercises both kill switch levels against fakes.
type KillSwitchTestSuite struct {
	suite.Suite
	logger     *zap.Logger
	userID     uuid.UUID
	halts      *fakeHaltStore
	bots       *fakeBotService
	orders     *fakeOrderService
	events     *capturingPublisher
	controller *KillSwitchController
}

func TestKillSwitchSuite(t *testing.T) {
	suite.Run(t, new(KillSwitchTestSuite))
}

func (s *KillSwitchTestSuite) SetupTest() {
	s.logger = zaptest.NewLogger(s.T())
	s.userID = uuid.New()
	s.halts = newFakeHaltStore()
	s.bots = newFakeBotService()
	s.orders = newFakeOrderService()
	s.events = &capturingPublisher{}
	s.controller = NewKillSwitchController(s.halts, s.bots, s.orders, s.events, 4, 2, s.logger)
}

func (s *KillSwitchTestSuite) addBot(orderCount int) uuid.UUID {
	botID := uuid.New()
	s.bots.owners[botID] = s.userID
	s.bots.active[s.userID] = append(s.bots.active[s.userID], botID)
	for i := 0; i < orderCount; i++ {
		order := OpenOrder{ID: uuid.New(), Symbol: "BTC-USD", Exchange: "binance"}
		s.orders.botOrders[botID] = append(s.orders.botOrders[botID], order)
		s.orders.userOrders[s.userID] = append(s.orders.userOrders[s.userID], order)
	}
	return botID
}

func (s *KillSwitchTestSuite) TestActivateBot() {
	botID := s.addBot(2)
	ctx := context.Background()

	err := s.controller.ActivateBot(ctx, botID, s.userID, "runaway strategy")
	s.Require().NoError(err)

	halt, err := s.halts.BotHalt(ctx, s.userID, botID)
	s.Require().NoError(err)
	s.Require().NotNil(halt)
	s.Equal("runaway strategy", halt.Reason)

	s.Contains(s.bots.stopped, botID)
	s.Len(s.orders.cancelled, 2)
	s.Len(s.events.byType("risk.killswitch.bot"), 1)
}

func (s *KillSwitchTestSuite) TestActivateBotWrongOwner() {
	botID := s.addBot(1)

	err := s.controller.ActivateBot(context.Background(), botID, uuid.New(), "not mine")
	s.Require().Error(err)
	s.True(errors.Is(err, errors.Unauthorized))

	// no halt flag and no side effects
	halt, _ := s.halts.BotHalt(context.Background(), s.userID, botID)
	s.Nil(halt)
	s.Empty(s.bots.stopped)
	s.Empty(s.orders.cancelled)
}

func (s *KillSwitchTestSuite) TestActivateBotUnknownBot() {
	err := s.controller.ActivateBot(context.Background(), uuid.New(), s.userID, "gone")
	s.Require().Error(err)
	s.True(errors.Is(err, errors.NotFound))
}

func (s *KillSwitchTestSuite) TestActivateBotIdempotent() {
	botID := s.addBot(0)
	ctx := context.Background()

	s.Require().NoError(s.controller.ActivateBot(ctx, botID, s.userID, "first"))
	s.Require().NoError(s.controller.ActivateBot(ctx, botID, s.userID, "second"))

	// the earliest activation reason survives
	halt, err := s.halts.BotHalt(ctx, s.userID, botID)
	s.Require().NoError(err)
	s.Require().NotNil(halt)
	s.Equal("first", halt.Reason)
}

func (s *KillSwitchTestSuite) TestActivateGlobal() {
	s.addBot(2)
	s.addBot(3)
	ctx := context.Background()

	result, err := s.controller.ActivateGlobal(ctx, s.userID, "emergency stop")
	s.Require().NoError(err)

	s.Equal(2, result.StoppedBots)
	s.Equal(5, result.CancelledOrders)

	halt, err := s.halts.UserHalt(ctx, s.userID)
	s.Require().NoError(err)
	s.Require().NotNil(halt)
	s.Equal("emergency stop", halt.Reason)

	s.Len(s.events.byType("risk.killswitch.global"), 1)
	event := s.events.byType("risk.killswitch.global")[0].(GlobalKillSwitchActivated)
	s.Equal(2, event.StoppedBots)
	s.Equal(5, event.CancelledOrders)
}

func (s *KillSwitchTestSuite) TestActivateGlobalEmptyScope() {
	result, err := s.controller.ActivateGlobal(context.Background(), s.userID, "nothing running")
	s.Require().NoError(err)

	s.Equal(0, result.StoppedBots)
	s.Equal(0, result.CancelledOrders)

	halt, err := s.halts.UserHalt(context.Background(), s.userID)
	s.Require().NoError(err)
	s.NotNil(halt, "halt flag is set even with nothing to stop")
}

func (s *KillSwitchTestSuite) TestGlobalPartialFailuresCounted() {
	s.addBot(1)
	failing := s.addBot(1)
	// exhaust the retry budget (2 retries allow 3 attempts)
	s.bots.failBots[failing] = 3

	result, err := s.controller.ActivateGlobal(context.Background(), s.userID, "partial")
	s.Require().NoError(err)

	s.Equal(1, result.StoppedBots)
	s.Equal(2, result.CancelledOrders)
}

func (s *KillSwitchTestSuite) TestRetryRecoversTransientFailures() {
	botID := s.addBot(1)
	// fails twice, succeeds on the third attempt
	s.bots.failBots[botID] = 2
	orderID := s.orders.userOrders[s.userID][0].ID
	s.orders.failOrders[orderID] = 1

	result, err := s.controller.ActivateGlobal(context.Background(), s.userID, "flaky network")
	s.Require().NoError(err)

	s.Equal(1, result.StoppedBots)
	s.Equal(1, result.CancelledOrders)
}

func (s *KillSwitchTestSuite) TestHaltFlagSetBeforeFanout() {
	// even when every stop request fails, the halt flag must be in place
	failing := s.addBot(0)
	s.bots.failBots[failing] = 100

	_, err := s.controller.ActivateGlobal(context.Background(), s.userID, "broken bots")
	s.Require().NoError(err)

	halt, err := s.halts.UserHalt(context.Background(), s.userID)
	s.Require().NoError(err)
	s.NotNil(halt)
}

func (s *KillSwitchTestSuite) TestDeactivateUser() {
	ctx := context.Background()
	_, err := s.controller.ActivateGlobal(ctx, s.userID, "stop")
	s.Require().NoError(err)

	s.Require().NoError(s.controller.Deactivate(ctx, s.userID, nil))

	halt, err := s.halts.UserHalt(ctx, s.userID)
	s.Require().NoError(err)
	s.Nil(halt)
	s.Len(s.events.byType("risk.killswitch.deactivated"), 1)
}

func (s *KillSwitchTestSuite) TestDeactivateBot() {
	botID := s.addBot(0)
	ctx := context.Background()
	s.Require().NoError(s.controller.ActivateBot(ctx, botID, s.userID, "stop"))

	s.Require().NoError(s.controller.Deactivate(ctx, s.userID, &botID))

	halt, err := s.halts.BotHalt(ctx, s.userID, botID)
	s.Require().NoError(err)
	s.Nil(halt)
}
