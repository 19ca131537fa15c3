package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/riskcore/internal/risk"
	"github.com/Aidin1998/riskcore/pkg/errors"
)

const testSecret = "test-secret"

// stubRiskService lets each test pin the responses it needs.
type stubRiskService struct {
	profile      *risk.RiskProfile
	assessment   *risk.RiskAssessment
	exposure     *risk.ExposureSnapshot
	capacity     float64
	gateResult   *risk.GateResult
	globalResult *risk.GlobalKillSwitchResult
	err          error

	lastAction  risk.ProposedAction
	lastReason  string
	deactivated bool
}

func (s *stubRiskService) CreateRiskProfile(ctx context.Context, userID uuid.UUID, level risk.RiskLevel, overrides risk.ProfileOverrides) (*risk.RiskProfile, error) {
	return s.profile, s.err
}

func (s *stubRiskService) UpdateRiskLimits(ctx context.Context, profileID, userID uuid.UUID, update risk.LimitUpdate) (*risk.RiskProfile, error) {
	return s.profile, s.err
}

func (s *stubRiskService) ChangeRiskLevel(ctx context.Context, userID uuid.UUID, level risk.RiskLevel) (*risk.RiskProfile, error) {
	return s.profile, s.err
}

func (s *stubRiskService) GetRiskProfile(ctx context.Context, userID uuid.UUID) (*risk.RiskProfile, error) {
	return s.profile, s.err
}

func (s *stubRiskService) GetRiskAssessment(ctx context.Context, userID uuid.UUID) (*risk.RiskAssessment, error) {
	return s.assessment, s.err
}

func (s *stubRiskService) GetExposure(ctx context.Context, userID uuid.UUID) (*risk.ExposureSnapshot, error) {
	return s.exposure, s.err
}

func (s *stubRiskService) GetAvailableCapacity(ctx context.Context, userID uuid.UUID) (float64, error) {
	return s.capacity, s.err
}

func (s *stubRiskService) CheckAction(ctx context.Context, action risk.ProposedAction) (*risk.GateResult, error) {
	s.lastAction = action
	return s.gateResult, s.err
}

func (s *stubRiskService) ActivateBotKillSwitch(ctx context.Context, botID, userID uuid.UUID, reason string) error {
	s.lastReason = reason
	return s.err
}

func (s *stubRiskService) ActivateGlobalKillSwitch(ctx context.Context, userID uuid.UUID, reason string) (*risk.GlobalKillSwitchResult, error) {
	s.lastReason = reason
	return s.globalResult, s.err
}

func (s *stubRiskService) DeactivateKillSwitch(ctx context.Context, userID uuid.UUID, botID *uuid.UUID) error {
	s.deactivated = true
	return s.err
}

func newTestRouter(t *testing.T, svc *stubRiskService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(zaptest.NewLogger(t), svc, testSecret).Router()
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, authClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubRiskService{})
	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(t, &stubRiskService{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/risk/assessment", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/risk/assessment", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateProfile(t *testing.T) {
	userID := uuid.New()
	profile, err := risk.NewRiskProfile(userID, risk.RiskLevelModerate, risk.ProfileOverrides{})
	require.NoError(t, err)

	svc := &stubRiskService{profile: profile}
	router := newTestRouter(t, svc)
	token := signToken(t, userID, "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/profiles", token, gin.H{
		"risk_level": "moderate",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var out risk.RiskProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, userID, out.UserID)
}

func TestCreateProfileRejectsBadLevel(t *testing.T) {
	router := newTestRouter(t, &stubRiskService{})
	token := signToken(t, uuid.New(), "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/profiles", token, gin.H{
		"risk_level": "yolo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProfileConflict(t *testing.T) {
	svc := &stubRiskService{err: errors.Conflict.Explain("risk profile already exists")}
	router := newTestRouter(t, svc)
	token := signToken(t, uuid.New(), "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/profiles", token, gin.H{
		"risk_level": "low",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckAction(t *testing.T) {
	userID := uuid.New()
	svc := &stubRiskService{gateResult: &risk.GateResult{Decision: risk.DecisionApproved}}
	router := newTestRouter(t, svc)
	token := signToken(t, userID, "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/check", token, gin.H{
		"symbol":       "BTC-USD",
		"side":         "buy",
		"size_percent": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, userID, svc.lastAction.UserID, "user id comes from the token, not the body")
	assert.Equal(t, "BTC-USD", svc.lastAction.Symbol)

	var out risk.GateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, risk.DecisionApproved, out.Decision)
}

func TestCheckActionValidation(t *testing.T) {
	router := newTestRouter(t, &stubRiskService{})
	token := signToken(t, uuid.New(), "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/check", token, gin.H{
		"symbol":       "BTC-USD",
		"side":         "sideways",
		"size_percent": 5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/risk/check", token, gin.H{
		"symbol":       "BTC-USD",
		"side":         "buy",
		"size_percent": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKillSwitchRequiresReason(t *testing.T) {
	router := newTestRouter(t, &stubRiskService{globalResult: &risk.GlobalKillSwitchResult{}})
	token := signToken(t, uuid.New(), "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/killswitch/global", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/risk/killswitch/global", token, gin.H{
		"reason": "emergency",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBotKillSwitchInvalidID(t *testing.T) {
	router := newTestRouter(t, &stubRiskService{})
	token := signToken(t, uuid.New(), "user")

	rec := doRequest(t, router, http.MethodPost, "/api/v1/risk/killswitch/bot/not-a-uuid", token, gin.H{
		"reason": "stop",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeactivateRequiresAdmin(t *testing.T) {
	svc := &stubRiskService{}
	router := newTestRouter(t, svc)
	target := uuid.New()

	userToken := signToken(t, uuid.New(), "user")
	rec := doRequest(t, router, http.MethodDelete, "/api/v1/risk/killswitch?user_id="+target.String(), userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, svc.deactivated)

	adminToken := signToken(t, uuid.New(), "admin")
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/risk/killswitch?user_id="+target.String(), adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.deactivated)
}

func TestServiceErrorMapping(t *testing.T) {
	svc := &stubRiskService{err: errors.Unavailable.Explain("portfolio service down")}
	router := newTestRouter(t, svc)
	token := signToken(t, uuid.New(), "user")

	rec := doRequest(t, router, http.MethodGet, "/api/v1/risk/assessment", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
