package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-feLayer/SafeLayer-Chat/internal/audit"
	"github.com/S-feLayer/SafeLayer-Chat/internal/detect"
	"github.com/S-feLayer/SafeLayer-Chat/internal/redaction"
	"github.com/S-feLayer/SafeLayer-Chat/internal/session"
)

type failingDetector struct{}

func (failingDetector) Name() string { return "failing" }

func (failingDetector) Detect(ctx context.Context, text string, pol detect.Policy) ([]detect.Span, error) {
	return nil, detect.ErrDetectionUnavailable
}

func (failingDetector) Healthy(ctx context.Context) error { return detect.ErrDetectionUnavailable }

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	det := detect.MustNewPatternDetector()
	store := session.NewStore(time.Minute)
	red := redaction.NewRedactor(det, store, redaction.WithRevealRules(det.RevealRules()))
	return NewServer(red, det, store, opts...)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRedact(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{
		Content:   "contact me at john.doe@example.com",
		SessionID: "s1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp redactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "contact me at jo**@example.com", resp.RedactedContent)
	assert.Equal(t, []string{"email"}, resp.DetectedPatterns)
	assert.Equal(t, "s1", resp.SessionID)
	require.Len(t, resp.EntitySummary, 1)
	assert.Equal(t, "jo**@example.com", resp.EntitySummary[0].Mask)
}

func TestHandleRedactGeneratesSession(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{Text: "plain text"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp redactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleRedactValidation(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{Content: ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{
		Content:     "hello",
		ContentType: "pdf",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_format")
}

func TestHandleRedactDetectorDown(t *testing.T) {
	store := session.NewStore(time.Minute)
	red := redaction.NewRedactor(failingDetector{}, store)
	h := NewServer(red, failingDetector{}, store).Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{Content: "hello"}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp redactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "detection_unavailable", resp.Error)
	assert.Empty(t, resp.RedactedContent)
}

func TestSessionEndpoints(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{
		Content:   "mail john@acme.com",
		SessionID: "s1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/s1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jo**@acme.com")

	rec = doJSON(t, h, http.MethodDelete, "/v1/sessions/s1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/s1", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	keys := map[string]string{"secret-key-1": "team-a"}
	h := newTestServer(t, WithAPIKeys(keys)).Routes()

	body := redactRequest{Content: "hello there"}

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/redact", body, map[string]string{"X-SafeLayer-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/redact", body, map[string]string{"X-SafeLayer-Key": "secret-key-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/redact", body, map[string]string{"Authorization": "Bearer secret-key-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	rec = doJSON(t, h, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, WithRateLimiter(NewRateLimiter(2, 2))).Routes()

	body := redactRequest{Content: "hello there"}
	codes := make(map[int]int)
	for i := 0; i < 4; i++ {
		rec := doJSON(t, h, http.MethodPost, "/v1/redact", body, nil)
		codes[rec.Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 2, codes[http.StatusTooManyRequests])
}

func TestHealth(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "pattern", resp.Detector)
	assert.True(t, resp.DetectorReachable)
}

func TestHealthDegraded(t *testing.T) {
	store := session.NewStore(time.Minute)
	red := redaction.NewRedactor(failingDetector{}, store)
	h := NewServer(red, failingDetector{}, store).Routes()

	rec := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.DetectorReachable)
}

func TestFormats(t *testing.T) {
	h := newTestServer(t).Routes()

	rec := doJSON(t, h, http.MethodGet, "/v1/formats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"markdown"`)
	assert.NotContains(t, rec.Body.String(), `"pdf"`)
}

func TestRedactRecordsAudit(t *testing.T) {
	auditStore, err := audit.NewStore(
		filepath.Join(t.TempDir(), "audit.db"),
		"0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	defer auditStore.Close()

	h := newTestServer(t, WithAuditStore(auditStore)).Routes()

	rec := doJSON(t, h, http.MethodPost, "/v1/redact", redactRequest{
		Content:   "mail john@acme.com",
		SessionID: "s1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := auditStore.List(context.Background(), "s1", "", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, "local", events[0].Caller)
	assert.Equal(t, 1, events[0].TypeCounts["email"])
	assert.Equal(t, audit.HashInput("mail john@acme.com"), events[0].InputSHA256)
}
