// Package server exposes the risk core's commands and queries over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/internal/risk"
	"github.com/Aidin1998/riskcore/pkg/errors"
)

// RiskService is the surface of the risk core consumed by the HTTP layer.
type RiskService interface {
	CreateRiskProfile(ctx context.Context, userID uuid.UUID, level risk.RiskLevel, overrides risk.ProfileOverrides) (*risk.RiskProfile, error)
	UpdateRiskLimits(ctx context.Context, profileID, userID uuid.UUID, update risk.LimitUpdate) (*risk.RiskProfile, error)
	ChangeRiskLevel(ctx context.Context, userID uuid.UUID, level risk.RiskLevel) (*risk.RiskProfile, error)
	GetRiskProfile(ctx context.Context, userID uuid.UUID) (*risk.RiskProfile, error)
	GetRiskAssessment(ctx context.Context, userID uuid.UUID) (*risk.RiskAssessment, error)
	GetExposure(ctx context.Context, userID uuid.UUID) (*risk.ExposureSnapshot, error)
	GetAvailableCapacity(ctx context.Context, userID uuid.UUID) (float64, error)
	CheckAction(ctx context.Context, action risk.ProposedAction) (*risk.GateResult, error)
	ActivateBotKillSwitch(ctx context.Context, botID, userID uuid.UUID, reason string) error
	ActivateGlobalKillSwitch(ctx context.Context, userID uuid.UUID, reason string) (*risk.GlobalKillSwitchResult, error)
	DeactivateKillSwitch(ctx context.Context, userID uuid.UUID, botID *uuid.UUID) error
}

// Server represents the HTTP server
type Server struct {
	logger    *zap.Logger
	riskSvc   RiskService
	jwtSecret []byte
}

// NewServer creates a new HTTP server
func NewServer(logger *zap.Logger, riskSvc RiskService, jwtSecret string) *Server {
	return &Server{
		logger:    logger.Named("http"),
		riskSvc:   riskSvc,
		jwtSecret: []byte(jwtSecret),
	}
}

// Router creates the HTTP router
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware("riskcore"))
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			riskGroup := v1.Group("/risk", s.authMiddleware())
			{
				riskGroup.POST("/profiles", s.handleCreateProfile)
				riskGroup.GET("/profiles/me", s.handleGetProfile)
				riskGroup.PUT("/profiles/:id/limits", s.handleUpdateLimits)
				riskGroup.PUT("/profiles/me/level", s.handleChangeRiskLevel)

				riskGroup.GET("/assessment", s.handleGetAssessment)
				riskGroup.GET("/exposure", s.handleGetExposure)
				riskGroup.GET("/capacity", s.handleGetCapacity)

				riskGroup.POST("/check", s.handleCheckAction)

				riskGroup.POST("/killswitch/bot/:botID", s.handleBotKillSwitch)
				riskGroup.POST("/killswitch/global", s.handleGlobalKillSwitch)
				riskGroup.DELETE("/killswitch", s.adminMiddleware(), s.handleDeactivateKillSwitch)
			}
		}
	}

	return router
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var riskErr *errors.Error
	if errors.As(err, &riskErr) {
		c.JSON(riskErr.HTTPStatus(), gin.H{"error": riskErr})
		return
	}
	s.logger.Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": "Internal", "message": "internal server error"}})
}

type authClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// authMiddleware authenticates the bearer token and stores the caller's user
// id and role on the request context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			s.writeError(c, errors.Unauthorized.Explain("missing authorization header"))
			c.Abort()
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		claims := &authClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Unauthorized.Explain("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !parsed.Valid {
			s.writeError(c, errors.Unauthorized.Explain("invalid token").Wrap(err))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			s.writeError(c, errors.Unauthorized.Explain("invalid subject claim"))
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// adminMiddleware restricts an endpoint to operators.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get("userRole"); role != "admin" {
			s.writeError(c, errors.Forbidden.Explain("admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get("userID")
	userID, _ := id.(uuid.UUID)
	return userID
}
