package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Aidin1998/riskcore/internal/risk"
	"github.com/Aidin1998/riskcore/pkg/errors"
)

type createProfileRequest struct {
	RiskLevel                   string   `json:"risk_level" binding:"required"`
	MaxPositionSizePercent      *float64 `json:"max_position_size_percent" binding:"omitempty,gte=0,lte=100"`
	MaxPortfolioExposurePercent *float64 `json:"max_portfolio_exposure_percent" binding:"omitempty,gte=0,lte=100"`
	MaxDailyLossPercent         *float64 `json:"max_daily_loss_percent" binding:"omitempty,gte=0,lte=100"`
	MaxDrawdownPercent          *float64 `json:"max_drawdown_percent" binding:"omitempty,gte=0,lte=100"`
	MaxLeverage                 *float64 `json:"max_leverage" binding:"omitempty,gte=1,lte=100"`
	MaxConcentrationPercent     *float64 `json:"max_concentration_percent" binding:"omitempty,gte=0,lte=100"`
	MaxTradesPerDay             *int     `json:"max_trades_per_day" binding:"omitempty,gte=0"`
	RequireApprovalAboveLimit   *bool    `json:"require_approval_above_limit"`
	Notes                       string   `json:"notes"`
}

func (s *Server) handleCreateProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return
	}

	level, err := risk.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		s.writeError(c, err)
		return
	}

	profile, err := s.riskSvc.CreateRiskProfile(c.Request.Context(), currentUserID(c), level, risk.ProfileOverrides{
		MaxPositionSizePercent:      req.MaxPositionSizePercent,
		MaxPortfolioExposurePercent: req.MaxPortfolioExposurePercent,
		MaxDailyLossPercent:         req.MaxDailyLossPercent,
		MaxDrawdownPercent:          req.MaxDrawdownPercent,
		MaxLeverage:                 req.MaxLeverage,
		MaxConcentrationPercent:     req.MaxConcentrationPercent,
		MaxTradesPerDay:             req.MaxTradesPerDay,
		RequireApprovalAboveLimit:   req.RequireApprovalAboveLimit,
		Notes:                       req.Notes,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

func (s *Server) handleGetProfile(c *gin.Context) {
	profile, err := s.riskSvc.GetRiskProfile(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type updateLimitsRequest struct {
	MaxPositionSizePercent      *float64 `json:"max_position_size_percent" binding:"omitempty,gte=0,lte=100"`
	MaxPortfolioExposurePercent *float64 `json:"max_portfolio_exposure_percent" binding:"omitempty,gte=0,lte=100"`
	MaxDailyLossPercent         *float64 `json:"max_daily_loss_percent" binding:"omitempty,gte=0,lte=100"`
	MaxDrawdownPercent          *float64 `json:"max_drawdown_percent" binding:"omitempty,gte=0,lte=100"`
	MaxLeverage                 *float64 `json:"max_leverage" binding:"omitempty,gte=1,lte=100"`
	MaxConcentrationPercent     *float64 `json:"max_concentration_percent" binding:"omitempty,gte=0,lte=100"`
	MaxTradesPerDay             *int     `json:"max_trades_per_day" binding:"omitempty,gte=0"`
	RequireApprovalAboveLimit   *bool    `json:"require_approval_above_limit"`
	Notes                       *string  `json:"notes"`
}

func (s *Server) handleUpdateLimits(c *gin.Context) {
	profileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid profile id"))
		return
	}

	var req updateLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return
	}

	profile, err := s.riskSvc.UpdateRiskLimits(c.Request.Context(), profileID, currentUserID(c), risk.LimitUpdate{
		MaxPositionSizePercent:      req.MaxPositionSizePercent,
		MaxPortfolioExposurePercent: req.MaxPortfolioExposurePercent,
		MaxDailyLossPercent:         req.MaxDailyLossPercent,
		MaxDrawdownPercent:          req.MaxDrawdownPercent,
		MaxLeverage:                 req.MaxLeverage,
		MaxConcentrationPercent:     req.MaxConcentrationPercent,
		MaxTradesPerDay:             req.MaxTradesPerDay,
		RequireApprovalAboveLimit:   req.RequireApprovalAboveLimit,
		Notes:                       req.Notes,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

type changeRiskLevelRequest struct {
	RiskLevel string `json:"risk_level" binding:"required"`
}

func (s *Server) handleChangeRiskLevel(c *gin.Context) {
	var req changeRiskLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return
	}

	level, err := risk.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		s.writeError(c, err)
		return
	}

	profile, err := s.riskSvc.ChangeRiskLevel(c.Request.Context(), currentUserID(c), level)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	assessment, err := s.riskSvc.GetRiskAssessment(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

func (s *Server) handleGetExposure(c *gin.Context) {
	snapshot, err := s.riskSvc.GetExposure(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleGetCapacity(c *gin.Context) {
	capacity, err := s.riskSvc.GetAvailableCapacity(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available_capacity_percent": capacity})
}

type checkActionRequest struct {
	BotID       *uuid.UUID `json:"bot_id"`
	Symbol      string     `json:"symbol" binding:"required"`
	Side        string     `json:"side" binding:"required,oneof=buy sell long short"`
	SizePercent float64    `json:"size_percent" binding:"gt=0,lte=100"`
	Leverage    float64    `json:"leverage" binding:"omitempty,gte=0,lte=100"`
}

func (s *Server) handleCheckAction(c *gin.Context) {
	var req checkActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return
	}

	result, err := s.riskSvc.CheckAction(c.Request.Context(), risk.ProposedAction{
		UserID:      currentUserID(c),
		BotID:       req.BotID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		SizePercent: req.SizePercent,
		Leverage:    req.Leverage,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type killSwitchRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) handleBotKillSwitch(c *gin.Context) {
	botID, err := uuid.Parse(c.Param("botID"))
	if err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid bot id"))
		return
	}

	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return
	}

	if err := s.riskSvc.ActivateBotKillSwitch(c.Request.Context(), botID, currentUserID(c), req.Reason); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "halted", "bot_id": botID})
}

func (s *Server) handleGlobalKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errors.Invalid.Explain("invalid request body").Wrap(err))
		return
	}

	result, err := s.riskSvc.ActivateGlobalKillSwitch(c.Request.Context(), currentUserID(c), req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDeactivateKillSwitch(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		s.writeError(c, errors.Invalid.Explain("user_id query parameter is required"))
		return
	}

	var botID *uuid.UUID
	if raw := c.Query("bot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(c, errors.Invalid.Explain("invalid bot_id"))
			return
		}
		botID = &id
	}

	if err := s.riskSvc.DeactivateKillSwitch(c.Request.Context(), userID, botID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reactivated"})
}
