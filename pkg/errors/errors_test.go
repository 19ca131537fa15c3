package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelKinds(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{Invalid, http.StatusBadRequest},
		{Unauthorized, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Unavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.HTTPStatus())
	}
}

func TestExplainPreservesKind(t *testing.T) {
	err := NotFound.Explain("risk profile %s not found", "abc")

	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Invalid))
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Contains(t, err.Error(), "risk profile abc not found")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Unavailable.Explain("portfolio service down").Wrap(cause)

	assert.True(t, Is(err, Unavailable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExplainDoesNotMutateSentinel(t *testing.T) {
	_ = Invalid.Explain("something specific")
	assert.Empty(t, Invalid.Fields)
	assert.NotContains(t, Invalid.Message, "something specific")
}

func TestWithFields(t *testing.T) {
	err := Invalid.Explain("risk limits out of bounds").WithFields([]FieldError{
		NewFieldError("range", "max_leverage", "must be between 1 and 100"),
	}).WithField("range", "max_daily_loss_percent", "must be between 0 and 100")

	require.Len(t, err.Fields, 2)
	assert.Equal(t, "max_leverage", err.Fields[0].Field)
	assert.Equal(t, "max_daily_loss_percent", err.Fields[1].Field)
}

func TestMarshalJSONOmitsCause(t *testing.T) {
	err := Unavailable.Explain("redis down").Wrap(fmt.Errorf("dial tcp: secret-host:6379"))

	payload, jsonErr := json.Marshal(err)
	require.NoError(t, jsonErr)

	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.Equal(t, "redis down", out["message"])
	assert.NotContains(t, string(payload), "secret-host")
}

func TestAsUnwrapsToError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Conflict.Explain("profile exists"))

	var riskErr *Error
	require.True(t, As(wrapped, &riskErr))
	assert.Equal(t, http.StatusConflict, riskErr.HTTPStatus())
}
