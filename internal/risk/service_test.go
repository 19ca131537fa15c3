package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

type fakeAssessmentCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*RiskAssessment
	getErr  error
	gets    int
	sets    int
}

func newFakeAssessmentCache() *fakeAssessmentCache {
	return &fakeAssessmentCache{entries: make(map[uuid.UUID]*RiskAssessment)}
}

func (c *fakeAssessmentCache) Get(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[userID], nil
}

func (c *fakeAssessmentCache) Set(ctx context.Context, assessment *RiskAssessment, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[assessment.UserID] = assessment
	return nil
}

// ServiceTestSuite wires the full risk core against in-memory fakes.
type ServiceTestSuite struct {
	suite.Suite
	logger    *zap.Logger
	userID    uuid.UUID
	profiles  *fakeProfileRepo
	portfolio *stubPortfolio
	history   *stubHistory
	halts     *fakeHaltStore
	trades    *fakeTradeCounter
	events    *capturingPublisher
	cache     *fakeAssessmentCache
	bots      *fakeBotService
	orders    *fakeOrderService
	svc       *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.logger = zaptest.NewLogger(s.T())
	s.userID = uuid.New()
	s.profiles = newFakeProfileRepo()
	s.portfolio = &stubPortfolio{value: decimal.NewFromInt(10000)}
	s.history = &stubHistory{history: &TradeHistory{}}
	s.halts = newFakeHaltStore()
	s.trades = newFakeTradeCounter()
	s.events = &capturingPublisher{}
	s.cache = newFakeAssessmentCache()
	s.bots = newFakeBotService()
	s.orders = newFakeOrderService()

	monitor := NewMonitor(s.portfolio, s.profiles, s.logger)
	calculator := NewCalculator(s.history, monitor, 0.95, 0, s.logger)
	gate := NewGate(s.profiles, monitor, calculator, s.halts, s.trades, s.events, s.logger)
	killswitch := NewKillSwitchController(s.halts, s.bots, s.orders, s.events, 4, 0, s.logger)
	s.svc = NewService(s.profiles, gate, calculator, monitor, killswitch, s.trades, s.events, s.cache, time.Minute, s.logger)
}

func (s *ServiceTestSuite) createProfile() *RiskProfile {
	profile, err := s.svc.CreateRiskProfile(context.Background(), s.userID, RiskLevelModerate, ProfileOverrides{})
	s.Require().NoError(err)
	return profile
}

func (s *ServiceTestSuite) TestCreateRiskProfile() {
	profile := s.createProfile()

	s.Equal(s.userID, profile.UserID)
	s.Equal(RiskLevelModerate, profile.Level)
	s.Len(s.events.byType("risk.profile.created"), 1)
}

func (s *ServiceTestSuite) TestCreateRiskProfileConflict() {
	s.createProfile()

	_, err := s.svc.CreateRiskProfile(context.Background(), s.userID, RiskLevelLow, ProfileOverrides{})
	s.Require().Error(err)
	s.True(errors.Is(err, errors.Conflict))
	s.Len(s.events.byType("risk.profile.created"), 1)
}

func (s *ServiceTestSuite) TestUpdateRiskLimitsOwnership() {
	profile := s.createProfile()

	_, err := s.svc.UpdateRiskLimits(context.Background(), profile.ID, uuid.New(), LimitUpdate{
		MaxPositionSizePercent: floatPtr(10),
	})
	s.Require().Error(err)
	s.True(errors.Is(err, errors.Unauthorized))
}

func (s *ServiceTestSuite) TestUpdateRiskLimitsPersists() {
	profile := s.createProfile()

	updated, err := s.svc.UpdateRiskLimits(context.Background(), profile.ID, s.userID, LimitUpdate{
		MaxPositionSizePercent: floatPtr(10),
	})
	s.Require().NoError(err)
	s.Equal(10.0, updated.MaxPositionSizePercent)

	reloaded, err := s.svc.GetRiskProfile(context.Background(), s.userID)
	s.Require().NoError(err)
	s.Equal(10.0, reloaded.MaxPositionSizePercent)
}

func (s *ServiceTestSuite) TestChangeRiskLevelClamps() {
	s.createProfile()

	updated, err := s.svc.ChangeRiskLevel(context.Background(), s.userID, RiskLevelVeryLow)
	s.Require().NoError(err)
	s.Equal(RiskLevelVeryLow, updated.Level)
	s.Equal(5.0, updated.MaxPositionSizePercent)
}

func (s *ServiceTestSuite) TestAssessmentCaching() {
	s.createProfile()
	ctx := context.Background()

	first, err := s.svc.GetRiskAssessment(ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(1, s.cache.sets)

	second, err := s.svc.GetRiskAssessment(ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(1, s.cache.sets, "second read is served from the cache")
	s.Equal(first.CalculatedAt, second.CalculatedAt)
}

func (s *ServiceTestSuite) TestAssessmentCacheFailureFallsThrough() {
	s.createProfile()
	s.cache.getErr = errTransient

	assessment, err := s.svc.GetRiskAssessment(context.Background(), s.userID)
	s.Require().NoError(err)
	s.NotNil(assessment)
}

func (s *ServiceTestSuite) TestCheckActionRecordsApprovedTrades() {
	s.createProfile()
	ctx := context.Background()

	result, err := s.svc.CheckAction(ctx, ProposedAction{
		UserID:      s.userID,
		Symbol:      "BTC-USD",
		Side:        "buy",
		SizePercent: 5,
	})
	s.Require().NoError(err)
	s.Equal(DecisionApproved, result.Decision)
	s.Equal(1, s.trades.recorded)
}

func (s *ServiceTestSuite) TestCheckActionRejectedNotCounted() {
	s.createProfile()

	result, err := s.svc.CheckAction(context.Background(), ProposedAction{
		UserID:      s.userID,
		Symbol:      "BTC-USD",
		Side:        "buy",
		SizePercent: 90,
	})
	s.Require().NoError(err)
	s.Equal(DecisionRejected, result.Decision)
	s.Zero(s.trades.recorded)
}

func (s *ServiceTestSuite) TestKillSwitchRequiresReason() {
	err := s.svc.ActivateBotKillSwitch(context.Background(), uuid.New(), s.userID, "")
	s.Require().Error(err)
	s.True(errors.Is(err, errors.Invalid))

	_, err = s.svc.ActivateGlobalKillSwitch(context.Background(), s.userID, "")
	s.Require().Error(err)
	s.True(errors.Is(err, errors.Invalid))
}

func (s *ServiceTestSuite) TestGlobalKillSwitchThenGateRejects() {
	s.createProfile()
	ctx := context.Background()

	_, err := s.svc.ActivateGlobalKillSwitch(ctx, s.userID, "emergency")
	s.Require().NoError(err)

	result, err := s.svc.CheckAction(ctx, ProposedAction{
		UserID:      s.userID,
		Symbol:      "BTC-USD",
		Side:        "buy",
		SizePercent: 1,
	})
	s.Require().NoError(err)
	s.Equal(DecisionRejected, result.Decision)
	s.Equal("trading halted: emergency", result.Reason)

	s.Require().NoError(s.svc.DeactivateKillSwitch(ctx, s.userID, nil))

	result, err = s.svc.CheckAction(ctx, ProposedAction{
		UserID:      s.userID,
		Symbol:      "BTC-USD",
		Side:        "buy",
		SizePercent: 1,
	})
	s.Require().NoError(err)
	s.Equal(DecisionApproved, result.Decision)
}
