package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/biogate/internal/audit"
	"github.com/roach88/biogate/internal/face"
	"github.com/roach88/biogate/internal/ir"
	"github.com/roach88/biogate/internal/session"
	"github.com/roach88/biogate/internal/store"
	"github.com/roach88/biogate/internal/testutil"
	"github.com/roach88/biogate/internal/verifier"
)

type envelope[T any] struct {
	Status string     `json:"status"`
	Data   T          `json:"data"`
	Error  *ErrorBody `json:"error"`
}

func createTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := verifier.New(st,
		verifier.WithClock(testutil.NewClock()),
		verifier.WithHandleGenerator(session.NewSequenceGenerator("session")),
	)
	return New(svc, nil)
}

func do[T any](t *testing.T, s *Server, method, path string, body interface{}) (int, envelope[T]) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func faceImage(t *testing.T, emb ir.FaceEmbedding) []byte {
	t.Helper()
	img, err := face.EncodeJSONImage(face.Detection{Embedding: emb})
	require.NoError(t, err)
	return img
}

func vec(n int, v float64) ir.FaceEmbedding {
	e := make(ir.FaceEmbedding, n)
	for i := range e {
		e[i] = v
	}
	return e
}

func registerAlice(t *testing.T, s *Server) {
	t.Helper()
	status, env := do[map[string]string](t, s, http.MethodPost, "/identities/alice", RegisterRequest{
		Sample: []float64{1, 2, 3},
		Image:  faceImage(t, vec(8, 0.1)),
	})
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	assert.Equal(t, "alice", env.Data["identity"])
}

func TestHealth(t *testing.T) {
	s := createTestServer(t)
	status, env := do[map[string]interface{}](t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", env.Status)
	assert.Contains(t, env.Data, "time")
	assert.Equal(t, "exact", env.Data["fingerprint_strategy"])
	assert.Equal(t, 0.5, env.Data["face_tolerance"])
	assert.Equal(t, float64(30), env.Data["max_frames"])
}

func TestVerificationFlow(t *testing.T) {
	s := createTestServer(t)
	registerAlice(t, s)

	status, started := do[session.Snapshot](t, s, http.MethodPost, "/sessions", StartRequest{Identity: "alice"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "session-1", started.Data.Handle)
	assert.Equal(t, session.StateFingerprintPending, started.Data.State)

	status, fp := do[session.Snapshot](t, s, http.MethodPost, "/sessions/session-1/fingerprint",
		FingerprintRequest{Sample: []float64{1, 2, 3}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateFacePending, fp.Data.State)

	status, got := do[session.Snapshot](t, s, http.MethodGet, "/sessions/session-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateFacePending, got.Data.State)

	status, fc := do[session.Snapshot](t, s, http.MethodPost, "/sessions/session-1/face",
		FaceRequest{Image: faceImage(t, vec(8, 0.1))})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateSuccess, fc.Data.State)
	require.NotNil(t, fc.Data.Attempt)
	assert.Equal(t, ir.OutcomeSuccess, fc.Data.Attempt.Outcome)

	status, log := do[[]ir.AuthAttempt](t, s, http.MethodGet, "/audit?identity=alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, log.Data, 1)
	assert.Equal(t, ir.OutcomeSuccess, log.Data[0].Outcome)

	status, report := do[audit.ChainReport](t, s, http.MethodGet, "/audit/verify", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, report.Data.Valid)
	assert.Equal(t, 1, report.Data.Records)
}

func TestFailedAuthenticationIsNotAnHTTPError(t *testing.T) {
	s := createTestServer(t)
	registerAlice(t, s)

	do[session.Snapshot](t, s, http.MethodPost, "/sessions", StartRequest{Identity: "alice"})
	status, env := do[session.Snapshot](t, s, http.MethodPost, "/sessions/session-1/fingerprint",
		FingerprintRequest{Sample: []float64{9, 9, 9}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateFailed, env.Data.State)
	assert.Equal(t, ir.ReasonFingerprintMismatch, env.Data.Reason)

	// Terminal sessions are released.
	status, missing := do[session.Snapshot](t, s, http.MethodGet, "/sessions/session-1", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(session.ErrCodeSessionNotFound), missing.Error.Code)
}

func TestUnknownIdentityFailsImmediately(t *testing.T) {
	s := createTestServer(t)
	status, env := do[session.Snapshot](t, s, http.MethodPost, "/sessions", StartRequest{Identity: "mallory"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, session.StateFailed, env.Data.State)
	assert.Equal(t, ir.ReasonUnknownIdentity, env.Data.Reason)
}

func TestAbandon(t *testing.T) {
	s := createTestServer(t)
	registerAlice(t, s)
	do[session.Snapshot](t, s, http.MethodPost, "/sessions", StartRequest{Identity: "alice"})

	status, env := do[session.Snapshot](t, s, http.MethodDelete, "/sessions/session-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, session.StateAbandoned, env.Data.State)
}

func TestEnrollEndpoints(t *testing.T) {
	s := createTestServer(t)

	status, _ := do[map[string]string](t, s, http.MethodPost, "/identities/bob/fingerprint",
		FingerprintRequest{Sample: []float64{4, 5, 6}})
	require.Equal(t, http.StatusOK, status)

	status, _ = do[map[string]string](t, s, http.MethodPost, "/identities/bob/face",
		FaceRequest{Embedding: vec(8, 0.2)})
	require.Equal(t, http.StatusOK, status)

	status, _ = do[map[string]string](t, s, http.MethodPost, "/identities/bob/face",
		FaceRequest{Image: faceImage(t, vec(8, 0.3))})
	require.Equal(t, http.StatusOK, status)

	status, ids := do[[]ir.IdentitySummary](t, s, http.MethodGet, "/identities", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, ids.Data, 1)
	assert.Equal(t, ir.Identity("bob"), ids.Data[0].Identity)
	assert.True(t, ids.Data[0].HasFingerprint)
	assert.Equal(t, 2, ids.Data[0].FaceEmbeddings)
}

func TestErrorStatuses(t *testing.T) {
	s := createTestServer(t)
	registerAlice(t, s)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"empty sample", http.MethodPost, "/identities/bob/fingerprint", FingerprintRequest{}, http.StatusUnprocessableEntity, string(session.ErrCodeInvalidSample)},
		{"no face payload", http.MethodPost, "/identities/bob/face", FaceRequest{}, http.StatusBadRequest, "HTTP_ERROR"},
		{"duplicate register", http.MethodPost, "/identities/alice", RegisterRequest{Sample: []float64{1}, Image: faceImage(t, vec(8, 0.1))}, http.StatusConflict, string(session.ErrCodeIdentityExists)},
		{"blank identity", http.MethodPost, "/sessions", StartRequest{}, http.StatusBadRequest, string(session.ErrCodeInvalidInput)},
		{"unknown handle", http.MethodPost, "/sessions/nope/fingerprint", FingerprintRequest{Sample: []float64{1}}, http.StatusNotFound, string(session.ErrCodeSessionNotFound)},
		{"unknown route", http.MethodGet, "/nowhere", nil, http.StatusNotFound, "HTTP_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do[map[string]interface{}](t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, "error", env.Status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := createTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWrongStateConflicts(t *testing.T) {
	s := createTestServer(t)
	registerAlice(t, s)
	do[session.Snapshot](t, s, http.MethodPost, "/sessions", StartRequest{Identity: "alice"})

	status, env := do[session.Snapshot](t, s, http.MethodPost, "/sessions/session-1/face",
		FaceRequest{Image: faceImage(t, vec(8, 0.1))})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(session.ErrCodeInvalidState), env.Error.Code)
}
