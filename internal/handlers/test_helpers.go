package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kdlacuna/kainan/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLoginFlowService implements LoginFlowService for testing
type MockLoginFlowService struct {
	SubmitCredentialsFunc func(ctx context.Context, email, password, ip, userAgent string) (*services.LoginStep, error)
	SubmitCodeFunc        func(ctx context.Context, sessionID, code, ip string) (*services.LoginStep, error)
	ResendCodeFunc        func(ctx context.Context, sessionID, ip string) error
	LogoutFunc            func(ctx context.Context, sessionID, ip string) error
}

func (m *MockLoginFlowService) SubmitCredentials(ctx context.Context, email, password, ip, userAgent string) (*services.LoginStep, error) {
	if m.SubmitCredentialsFunc != nil {
		return m.SubmitCredentialsFunc(ctx, email, password, ip, userAgent)
	}
	return nil, nil
}

func (m *MockLoginFlowService) SubmitCode(ctx context.Context, sessionID, code, ip string) (*services.LoginStep, error) {
	if m.SubmitCodeFunc != nil {
		return m.SubmitCodeFunc(ctx, sessionID, code, ip)
	}
	return nil, nil
}

func (m *MockLoginFlowService) ResendCode(ctx context.Context, sessionID, ip string) error {
	if m.ResendCodeFunc != nil {
		return m.ResendCodeFunc(ctx, sessionID, ip)
	}
	return nil
}

func (m *MockLoginFlowService) Logout(ctx context.Context, sessionID, ip string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionID, ip)
	}
	return nil
}

func (m *MockLoginFlowService) SessionTTLSeconds() int { return 43200 }

func (m *MockLoginFlowService) PendingTTLSeconds() int { return 600 }

// NewTestRequest builds a JSON request for handler tests
func NewTestRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks status and decodes the response body into out
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, out interface{}) {
	t.Helper()

	assert.Equal(t, wantStatus, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(out))
}

// AssertErrorResponse checks status and the machine-readable error code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()

	assert.Equal(t, wantStatus, w.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, wantCode, resp.Error)
}
