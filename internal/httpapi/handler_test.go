package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgig/quickgig/internal/app"
)

var testSecret = []byte("test-secret")

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Options{}, nil)
	require.NoError(t, err)
	return NewHandler(application, testSecret, nil)
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, userID string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndMetricsSkipAuth(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/jobs", "employer", map[string]interface{}{
		"title":       "Move a piano",
		"payment":     "80 EUR",
		"max_workers": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jobID, _ := decodeBody(t, rec)["ID"].(string)
	require.NotEmpty(t, jobID)

	// Browse open jobs as a worker.
	rec = doRequest(t, h, http.MethodGet, "/jobs", "worker", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Worker applies.
	rec = doRequest(t, h, http.MethodPost, "/jobs/"+jobID+"/applications", "worker", map[string]interface{}{
		"message": "I have a dolly",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appID, _ := decodeBody(t, rec)["ID"].(string)
	require.NotEmpty(t, appID)

	// Owner cannot apply to their own job.
	rec = doRequest(t, h, http.MethodPost, "/jobs/"+jobID+"/applications", "employer", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeBody(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "own_job", errBody["reason"])

	// Employer accepts.
	rec = doRequest(t, h, http.MethodPost, "/applications/"+appID+"/accept", "employer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decodeBody(t, rec)
	engagement := accepted["engagement"].(map[string]interface{})
	engID, _ := engagement["ID"].(string)
	require.NotEmpty(t, engID)
	assert.Equal(t, "active", engagement["Status"])

	// A second accept attempt conflicts.
	rec = doRequest(t, h, http.MethodPost, "/applications/"+appID+"/accept", "employer", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Employer completes.
	rec = doRequest(t, h, http.MethodPost, "/engagements/"+engID+"/complete", "employer", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Both parties rate.
	rec = doRequest(t, h, http.MethodPost, "/engagements/"+engID+"/rate", "employer", map[string]interface{}{
		"score": 5, "review": "great",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doRequest(t, h, http.MethodPost, "/engagements/"+engID+"/rate", "worker", map[string]interface{}{
		"score": 4,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Worker's aggregate reflects the employer's score.
	rec = doRequest(t, h, http.MethodGet, "/users/worker", "employer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody(t, rec)
	assert.Equal(t, float64(1), profile["RatingCount"])
	assert.Equal(t, float64(5), profile["RatingAverage"])

	// Worker sees the accepted notification.
	rec = doRequest(t, h, http.MethodGet, "/notifications", "worker", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifs))
	require.NotEmpty(t, notifs)
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/jobs/unknown", "worker", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/jobs", "employer", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/jobs", "employer", map[string]interface{}{"title": "Cleanup"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID, _ := decodeBody(t, rec)["ID"].(string)

	rec = doRequest(t, h, http.MethodPost, "/jobs/"+jobID+"/close", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/jobs/"+jobID+"/close", "employer", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/jobs/"+jobID+"/close", "employer", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeBody(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "job_closed", errBody["reason"])
}

func TestNotificationReadFlow(t *testing.T) {
	h := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/jobs", "employer", map[string]interface{}{"title": "Rake leaves"})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID, _ := decodeBody(t, rec)["ID"].(string)

	rec = doRequest(t, h, http.MethodPost, "/jobs/"+jobID+"/applications", "worker", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/notifications", "employer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notifs []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifs))
	require.Len(t, notifs, 1)
	notifID := notifs[0]["ID"].(string)

	// Only the recipient may mark it read.
	rec = doRequest(t, h, http.MethodPost, "/notifications/"+notifID+"/read", "worker", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/notifications/"+notifID+"/read", "employer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["IsRead"])
}
