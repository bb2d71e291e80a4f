package session

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/strokeguard/internal/risk"
)

func newTestRouter(t *testing.T, opts ...ManagerOption) (*mux.Router, *Manager, *memRepository) {
	t.Helper()
	m, _, repo := newTestManager(t, opts...)
	router := mux.NewRouter()
	NewHTTPHandler(m, nil).RegisterRoutes(router)
	return router, m, repo
}

func do(t *testing.T, router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func pngFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = 140
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHTTPHandler_StartScanValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scans", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scans", []byte(`{"mode":"thermal"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scans", []byte(`{"mode":"face","source":"usb"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "unknown frame source")
	assert.EqualValues(t, http.StatusBadRequest, body["status"])
}

func TestHTTPHandler_PushScanLifecycle(t *testing.T) {
	router, _, _ := newTestRouter(t, WithCaptureConfig(slowCapture()))

	rec := do(t, router, http.MethodPost, "/api/scans", []byte(`{"user_id":"u1","mode":"face","source":"push"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotNil(t, created.Session)
	id := created.Session.ID
	assert.Equal(t, ScanStatusActive, created.Session.Status)

	ts := time.Now().UnixMilli()
	rec = do(t, router, http.MethodPost, "/api/scans/"+id+"/frames?ts="+strconv.FormatInt(ts, 10), pngFrame(t))
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/scans/"+id+"/frames", []byte("not an image"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scans/"+id+"/frames?ts=soon", pngFrame(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/scans/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var details SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
	require.NotNil(t, details.Snapshot)
	assert.Equal(t, "u1", details.Session.UserID)

	baseline := `{"blood_pressure":"118/76","diabetes_status":"no","smoking_status":"never","family_history":"no","activity_level":"5+"}`
	rec = do(t, router, http.MethodPut, "/api/scans/"+id+"/baseline", []byte(baseline))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scans/"+id+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.Equal(t, ScanStatusStopped, stopped.Session.Status)

	rec = do(t, router, http.MethodPost, "/api/scans/"+id+"/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/scans/"+id+"/frames", pngFrame(t))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/scans/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/scans/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandler_ListScansAndStreak(t *testing.T) {
	router, _, repo := newTestRouter(t)
	now := time.Now()
	score := 90
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.SaveScan(context.Background(), &Record{
			SessionID:  id,
			UserID:     "u1",
			Status:     ScanStatusCompleted,
			Score:      &score,
			StartedAt:  now.Add(-time.Duration(i) * 24 * time.Hour),
			FinishedAt: now.Add(-time.Duration(i)*24*time.Hour + 30*time.Second),
		}))
	}

	rec := do(t, router, http.MethodGet, "/api/scans?user_id=u1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Scans []Record `json:"scans"`
		Count int      `json:"count"`
		Limit int      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 2, list.Limit)
	assert.Equal(t, "a", list.Scans[0].SessionID)

	rec = do(t, router, http.MethodGet, "/api/scans?user_id=u1&limit=abc", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 50, list.Limit)
	assert.Equal(t, 3, list.Count)

	rec = do(t, router, http.MethodGet, "/api/users/u1/streak", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var streak Streak
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &streak))
	assert.Equal(t, 3, streak.Days)
	assert.True(t, streak.CheckedToday)
}

func TestHTTPHandler_UserBaseline(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/users/u9/baseline", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/users/u9/baseline", []byte(`{"blood_pressure":"125/82","smoking_status":"former"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/users/u9/baseline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var b risk.Baseline
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "125/82", b.BloodPressure)
	assert.Equal(t, "former", b.SmokingStatus)
}

func TestHTTPHandler_Score(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{
		"baseline": {"blood_pressure":"118/76","diabetes_status":"no","smoking_status":"never","family_history":"no","activity_level":"5+"},
		"metrics": {"pulse_rate":65,"sdnn_ms":60,"pulse_rate_history":[64,65,66,65,64,66]}
	}`
	rec := do(t, router, http.MethodPost, "/api/risk/score", []byte(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 96, resp.Score.Total)
	assert.Equal(t, risk.TriageGreen, resp.Triage)
	assert.True(t, strings.Contains(rec.Header().Get("Content-Type"), "application/json"))
}
