package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quill/api/internal/authpw"
	"quill/api/internal/config"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	fs := newFakeStore()
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
	svc := New(cfg, fs, newFakeSessions(), authpw.NewService(fs), nil, nil, nil, nil, zap.NewNop())
	server := httptest.NewServer(NewHTTPServer(svc, zap.NewNop(), "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func signUpHTTP(t *testing.T, server *httptest.Server, email, name string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":       email,
		"password":    "password123",
		"displayName": name,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["token"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestSignUpValidation(t *testing.T) {
	server := testServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":       "not-an-email",
		"password":    "short",
		"displayName": "",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	assert.NotNil(t, errBody["details"])
}

func TestDocumentsRequireAuth(t *testing.T) {
	server := testServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/documents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/documents", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDocumentCRUDOverHTTP(t *testing.T) {
	server := testServer(t)
	token := signUpHTTP(t, server, "ada@example.com", "Ada")

	resp, doc := doJSON(t, http.MethodPost, server.URL+"/api/documents", token, map[string]any{
		"title":   "Launch plan",
		"content": "<p>draft</p>",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	docID := doc["id"].(string)
	assert.Equal(t, float64(1), doc["currentVersion"])
	assert.Equal(t, "private", doc["visibility"])

	resp, got := doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Launch plan", got["title"])

	resp, updated := doJSON(t, http.MethodPatch, server.URL+"/api/documents/"+docID, token, map[string]any{
		"title": "Launch plan v2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Launch plan v2", updated["title"])
	assert.Equal(t, float64(2), updated["currentVersion"])

	resp, list := doJSON(t, http.MethodGet, server.URL+"/api/documents", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list["documents"], 1)

	resp, missing := doJSON(t, http.MethodGet, server.URL+"/api/documents/doc_missing", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", missing["error"].(map[string]any)["code"])
}

func TestVersionEndpoints(t *testing.T) {
	server := testServer(t)
	token := signUpHTTP(t, server, "ada@example.com", "Ada")

	_, doc := doJSON(t, http.MethodPost, server.URL+"/api/documents", token, map[string]any{
		"title":   "Doc",
		"content": "<p>one</p>",
	})
	docID := doc["id"].(string)

	_, _ = doJSON(t, http.MethodPatch, server.URL+"/api/documents/"+docID, token, map[string]any{
		"content": "<p>one two three</p>",
	})

	resp, list := doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID+"/versions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list["versions"], 2)

	resp, v1 := doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID+"/versions/1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>one</p>", v1["content"])

	resp, diff := doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID+"/versions/compare?v1=1&v2=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), diff["wordCountDiff"])

	resp, restored := doJSON(t, http.MethodPost, server.URL+"/api/documents/"+docID+"/versions/1/restore", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>one</p>", restored["document"].(map[string]any)["content"])

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID+"/versions/0", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestShareAndNotificationsOverHTTP(t *testing.T) {
	server := testServer(t)
	authorToken := signUpHTTP(t, server, "ada@example.com", "Ada")
	readerToken := signUpHTTP(t, server, "grace@example.com", "Grace")

	_, readerUsers := doJSON(t, http.MethodGet, server.URL+"/api/users?q=grace", authorToken, nil)
	readerID := readerUsers["users"].([]any)[0].(map[string]any)["id"].(string)

	_, doc := doJSON(t, http.MethodPost, server.URL+"/api/documents", authorToken, map[string]any{
		"title":   "Doc",
		"content": `<p><span data-mention-id="` + readerID + `">@Grace</span></p>`,
	})
	docID := doc["id"].(string)

	// The mention granted view access.
	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID, readerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, notes := doJSON(t, http.MethodGet, server.URL+"/api/notifications", readerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), notes["unreadCount"])
	noteID := notes["notifications"].([]any)[0].(map[string]any)["id"].(string)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/notifications/"+noteID+"/read", readerToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Upgrade to edit via explicit share.
	resp, shares := doJSON(t, http.MethodPost, server.URL+"/api/documents/"+docID+"/share", authorToken, map[string]any{
		"userId":     readerID,
		"permission": "edit",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := shares["sharedWith"].([]any)[0].(map[string]any)
	assert.Equal(t, "edit", entry["permission"])

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/documents/"+docID+"/share/"+readerID, authorToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/documents/"+docID, readerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionEndpoint(t *testing.T) {
	server := testServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/session", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])

	token := signUpHTTP(t, server, "ada@example.com", "Ada")
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/session", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "Ada", body["user"].(map[string]any)["displayName"])
}

func TestRefreshEndpoint(t *testing.T) {
	server := testServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":       "ada@example.com",
		"password":    "password123",
		"displayName": "Ada",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	refreshToken := body["refreshToken"].(string)

	resp, refreshed := doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, refreshed["token"])

	// Single use.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/session/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	server := testServer(t)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/documents", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
