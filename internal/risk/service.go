package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/pkg/errors"
)

// AssessmentCache caches computed assessments. Get returns nil on a miss.
type AssessmentCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error)
	Set(ctx context.Context, assessment *RiskAssessment, ttl time.Duration) error
}

// Service is the facade exposing the risk core's commands and queries to the
// HTTP layer and other in-process callers.
type Service struct {
	profiles   ProfileRepository
	gate       *Gate
	calculator *Calculator
	exposure   *Monitor
	killswitch *KillSwitchController
	trades     TradeCounter
	events     EventPublisher
	cache      AssessmentCache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

func NewService(
	profiles ProfileRepository,
	gate *Gate,
	calculator *Calculator,
	exposure *Monitor,
	killswitch *KillSwitchController,
	trades TradeCounter,
	events EventPublisher,
	cache AssessmentCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		profiles:   profiles,
		gate:       gate,
		calculator: calculator,
		exposure:   exposure,
		killswitch: killswitch,
		trades:     trades,
		events:     events,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger.Named("risk-service"),
	}
}

// CreateRiskProfile provisions a profile for a user and emits
// RiskProfileCreated. A user may hold only one profile.
func (s *Service) CreateRiskProfile(ctx context.Context, userID uuid.UUID, level RiskLevel, overrides ProfileOverrides) (*RiskProfile, error) {
	if existing, err := s.profiles.GetByUserID(ctx, userID); err == nil && existing != nil {
		return nil, errors.Conflict.Explain("risk profile already exists for user %s", userID)
	} else if err != nil && !errors.Is(err, errors.NotFound) {
		return nil, err
	}

	profile, err := NewRiskProfile(userID, level, overrides)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, err
	}

	s.publish(ctx, RiskProfileCreated{
		ProfileID:  profile.ID,
		UserID:     profile.UserID,
		RiskLevel:  profile.Level,
		OccurredAt: profile.CreatedAt,
	})
	s.logger.Info("risk profile created",
		zap.String("profile_id", profile.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("risk_level", string(level)),
	)
	return profile, nil
}

// UpdateRiskLimits replaces the supplied limit fields on the user's profile.
func (s *Service) UpdateRiskLimits(ctx context.Context, profileID, userID uuid.UUID, update LimitUpdate) (*RiskProfile, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile.UserID != userID {
		return nil, errors.Unauthorized.Explain("profile %s does not belong to user %s", profileID, userID)
	}

	if err := profile.UpdateLimits(update); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ChangeRiskLevel moves the user's profile to a new level, clamping the
// ceiling-governed limits down where needed.
func (s *Service) ChangeRiskLevel(ctx context.Context, userID uuid.UUID, level RiskLevel) (*RiskProfile, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := profile.ChangeRiskLevel(level); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// GetRiskProfile returns the user's profile.
func (s *Service) GetRiskProfile(ctx context.Context, userID uuid.UUID) (*RiskProfile, error) {
	return s.profiles.GetByUserID(ctx, userID)
}

// GetRiskAssessment returns the user's current assessment, served from the
// cache when fresh.
func (s *Service) GetRiskAssessment(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error) {
	return s.Assessment(ctx, userID)
}

// Assessment implements AssessmentSource with caching in front of the
// calculator. Cache failures fall through to a fresh computation.
func (s *Service) Assessment(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("assessment cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	assessment, err := s.calculator.Assessment(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, assessment, s.cacheTTL); err != nil {
			s.logger.Warn("assessment cache write failed", zap.Error(err))
		}
	}
	return assessment, nil
}

// GetExposure returns the user's live exposure snapshot.
func (s *Service) GetExposure(ctx context.Context, userID uuid.UUID) (*ExposureSnapshot, error) {
	return s.exposure.CurrentExposure(ctx, userID)
}

// GetAvailableCapacity returns the remaining exposure headroom in percent.
func (s *Service) GetAvailableCapacity(ctx context.Context, userID uuid.UUID) (float64, error) {
	return s.exposure.AvailableCapacity(ctx, userID)
}

// CheckAction runs the enforcement gate on a proposed action. An approved
// action counts against the user's daily trade budget.
func (s *Service) CheckAction(ctx context.Context, action ProposedAction) (*GateResult, error) {
	result, err := s.gate.Evaluate(ctx, action)
	if err != nil {
		return nil, err
	}

	if result.Decision == DecisionApproved && s.trades != nil {
		if err := s.trades.RecordTrade(ctx, action.UserID); err != nil {
			s.logger.Warn("failed to record trade against daily budget",
				zap.String("user_id", action.UserID.String()), zap.Error(err))
		}
	}
	return result, nil
}

// ActivateBotKillSwitch halts a single bot and cancels its orders.
func (s *Service) ActivateBotKillSwitch(ctx context.Context, botID, userID uuid.UUID, reason string) error {
	if reason == "" {
		return errors.Invalid.Explain("kill switch reason is required")
	}
	return s.killswitch.ActivateBot(ctx, botID, userID, reason)
}

// ActivateGlobalKillSwitch halts all trading for a user.
func (s *Service) ActivateGlobalKillSwitch(ctx context.Context, userID uuid.UUID, reason string) (*GlobalKillSwitchResult, error) {
	if reason == "" {
		return nil, errors.Invalid.Explain("kill switch reason is required")
	}
	return s.killswitch.ActivateGlobal(ctx, userID, reason)
}

// DeactivateKillSwitch clears a halt flag for a user or bot scope.
func (s *Service) DeactivateKillSwitch(ctx context.Context, userID uuid.UUID, botID *uuid.UUID) error {
	return s.killswitch.Deactivate(ctx, userID, botID)
}

func (s *Service) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish risk event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}
