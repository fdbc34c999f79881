package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BizAtlas/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixedNow(t *testing.T) {
	t.Helper()
	prev := Now
	Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { Now = prev })
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestOK(t *testing.T) {
	fixedNow(t)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OK(c, http.StatusCreated, map[string]string{"id": "s-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	env := decode(t, w)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.Equal(t, map[string]any{"id": "s-1"}, env.Data)
	assert.Equal(t, "2026-03-01T12:00:00Z", env.Timestamp.Format(time.RFC3339))
}

func TestFail_MapsCodeToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{"session not found", errors.New(errors.ErrCodeSessionNotFound, "map session not found").WithDetail("id=x"), http.StatusNotFound, "GEO_001", "id=x"},
		{"agent output invalid", errors.New(errors.ErrCodeAgentOutputInvalid, "bad reply").WithDetail("raw"), http.StatusBadGateway, "AGT_003", ""},
		{"credits exhausted", errors.New(errors.ErrCodeUpstreamCreditsExhausted, "no credits"), http.StatusPaymentRequired, "SRC_005", ""},
		{"rate limited", errors.New(errors.ErrCodeDataSourceRateLimited, "slow down"), http.StatusTooManyRequests, "SRC_002", ""},
		{"wrapped", fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeInvalidBounds, "bad")), http.StatusBadRequest, "GEO_002", ""},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, "COMMON_001", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Fail(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.True(t, c.IsAborted())
			require.Len(t, c.Errors, 1)
			env := decode(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, tt.wantDetail, env.Error.Detail)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestBody_PlainErrorTextHidden(t *testing.T) {
	b := Body(fmt.Errorf("dial tcp 10.0.0.3:5432: refused"))
	assert.Equal(t, "internal server error", b.Message)
	assert.NotContains(t, b.Message, "10.0.0.3")
}

func TestBody_EmptyMessageUsesDefault(t *testing.T) {
	b := Body(&errors.AppError{Code: errors.ErrCodeClusterNotFound})
	assert.Equal(t, "cluster not found", b.Message)
}

//Personal.AI order the ending
