package gallery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zllovesuki/gembooth/auth"
	"github.com/zllovesuki/gembooth/entitlement"
	"github.com/zllovesuki/gembooth/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGate struct {
	result   entitlement.Result
	checked  []usage.Action
	consumed []usage.Action
}

func (f *fakeGate) Check(ctx context.Context, userID string, action usage.Action) entitlement.Result {
	f.checked = append(f.checked, action)
	return f.result
}

func (f *fakeGate) Consume(ctx context.Context, userID string, action usage.Action) error {
	f.consumed = append(f.consumed, action)
	return nil
}

type fakeStore struct {
	photos []Photo
	gifs   []GIF
}

func (f *fakeStore) CreatePhoto(ctx context.Context, photo *Photo) error {
	f.photos = append(f.photos, *photo)
	return nil
}

func (f *fakeStore) CreateGIF(ctx context.Context, gif *GIF) error {
	f.gifs = append(f.gifs, *gif)
	return nil
}

func (f *fakeStore) GetPhoto(ctx context.Context, id string) (*Photo, error) {
	for _, photo := range f.photos {
		if photo.ID == id {
			found := photo
			return &found, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListPhotos(ctx context.Context, opt ListOption) ([]Photo, error) {
	return f.photos, nil
}

func (f *fakeStore) ListGIFs(ctx context.Context, opt ListOption) ([]GIF, error) {
	return f.gifs, nil
}

func (f *fakeStore) DeletePhoto(ctx context.Context, userID, id string) (bool, error) {
	return false, nil
}

func (f *fakeStore) DeleteGIF(ctx context.Context, userID, id string) (bool, error) {
	return false, nil
}

func testService(t *testing.T, gate *fakeGate, store *fakeStore) *Service {
	svc, err := NewService(ServiceOptions{
		GalleryManager: store,
		Gate:           gate,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	return svc
}

func userRequest(t *testing.T, method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), auth.Context, &auth.Claims{
		ID:    "cus_1",
		Email: "booth@example.com",
	})
	return req.WithContext(ctx)
}

func TestCreatePhotoDeniedByQuota(t *testing.T) {
	gate := &fakeGate{
		result: entitlement.Result{
			Allowed: false,
			Limit:   50,
			Used:    50,
			Message: "You've used all 50 photos included in Free this month. Upgrade your plan to keep going.",
		},
	}
	store := &fakeStore{}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "POST", "/photos",
		`{"mode": "photo", "objectKey": "photos/cus_1/abc.webp"}`))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var envelope struct {
		Result   entitlement.Result `json:"result"`
		Messages []string           `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	assert.False(t, envelope.Result.Allowed)
	assert.Equal(t, int64(50), envelope.Result.Limit)
	assert.Equal(t, int64(50), envelope.Result.Used)
	assert.Contains(t, strings.Join(envelope.Messages, " "), "Upgrade")

	assert.Empty(t, store.photos, "a denied request must not persist anything")
	assert.Empty(t, gate.consumed, "a denied request must not consume quota")
}

func TestCreatePhotoConsumesExactlyOnce(t *testing.T) {
	gate := &fakeGate{
		result: entitlement.Result{Allowed: true, Limit: 50, Used: 49},
	}
	store := &fakeStore{}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "POST", "/photos",
		`{"mode": "fitcheck", "objectKey": "photos/cus_1/abc.webp", "caption": "fit check"}`))

	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, store.photos, 1)
	assert.Equal(t, "cus_1", store.photos[0].UserID)
	assert.Equal(t, usage.ActionFitCheck, store.photos[0].Mode)
	assert.NotEmpty(t, store.photos[0].ID)

	require.Len(t, gate.consumed, 1)
	assert.Equal(t, usage.ActionFitCheck, gate.consumed[0])
}

func TestCreatePhotoRejectsGIFMode(t *testing.T) {
	gate := &fakeGate{result: entitlement.Result{Allowed: true}}
	store := &fakeStore{}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "POST", "/photos",
		`{"mode": "gif", "objectKey": "photos/cus_1/abc.webp"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, gate.checked, "invalid modes never reach the gate")
	assert.Empty(t, store.photos)
}

func TestCreatePhotoRejectsUnknownMode(t *testing.T) {
	gate := &fakeGate{result: entitlement.Result{Allowed: true}}
	store := &fakeStore{}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "POST", "/photos",
		`{"mode": "teleport", "objectKey": "photos/cus_1/abc.webp"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, gate.checked)
	assert.Empty(t, store.photos)
}

func TestCreateGIFDeniedByQuota(t *testing.T) {
	gate := &fakeGate{
		result: entitlement.Result{Allowed: false, Limit: 5, Used: 5},
	}
	store := &fakeStore{}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "POST", "/gifs",
		`{"objectKey": "gifs/cus_1/abc.gif", "frameCount": 4}`))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	require.Len(t, gate.checked, 1)
	assert.Equal(t, usage.ActionGIF, gate.checked[0])
	assert.Empty(t, store.gifs)
	assert.Empty(t, gate.consumed)
}

func TestCreateGIFConsumesExactlyOnce(t *testing.T) {
	gate := &fakeGate{
		result: entitlement.Result{Allowed: true, Limit: 5, Used: 0},
	}
	store := &fakeStore{}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "POST", "/gifs",
		`{"objectKey": "gifs/cus_1/abc.gif", "frameCount": 4}`))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.gifs, 1)
	assert.Equal(t, "cus_1", store.gifs[0].UserID)
	require.Len(t, gate.consumed, 1)
	assert.Equal(t, usage.ActionGIF, gate.consumed[0])
}

func TestGetPhotoHidesOtherUsers(t *testing.T) {
	gate := &fakeGate{}
	store := &fakeStore{
		photos: []Photo{
			{ID: "mine", UserID: "cus_1", Mode: usage.ActionPhoto},
			{ID: "theirs", UserID: "cus_2", Mode: usage.ActionPhoto},
		},
	}
	svc := testService(t, gate, store)

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "GET", "/photos/mine", ""))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "GET", "/photos/theirs", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	svc.Router().ServeHTTP(w, userRequest(t, "GET", "/photos/nonexistent", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
