package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zllovesuki/gembooth/auth"
	"github.com/zllovesuki/gembooth/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func authenticatedRequest(t *testing.T, target string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	ctx := context.WithValue(req.Context(), auth.Context, &auth.Claims{
		ID:    "cus_1",
		Email: "booth@example.com",
	})
	return req.WithContext(ctx)
}

func TestCheckActionEndpoint(t *testing.T) {
	gate := testGate(t,
		&fakeSubscriptions{},
		&fakeUsage{record: &usage.Record{UserID: "cus_1", GifsUsed: 5}},
		false,
	)
	svc, err := NewService(ServiceOptions{
		Gate:   gate,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, authenticatedRequest(t, "/gif"))

	assert.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Result Result `json:"result"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	assert.False(t, envelope.Result.Allowed)
	assert.Equal(t, int64(5), envelope.Result.Limit)
	assert.Equal(t, int64(5), envelope.Result.Used)
	assert.NotEmpty(t, envelope.Result.Message)
}

func TestCheckActionEndpointUnknownAction(t *testing.T) {
	gate := testGate(t, &fakeSubscriptions{}, &fakeUsage{}, false)
	svc, err := NewService(ServiceOptions{
		Gate:   gate,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, authenticatedRequest(t, "/teleport"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
