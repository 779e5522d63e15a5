package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxpadi-client/internal/models"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", nil)

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, defaultTimeout, c.httpClient.Timeout)
	assert.IsType(t, &MemoryTokens{}, c.Tokens())
}

func TestNewClient_WithTimeout(t *testing.T) {
	c := NewClient("http://example.test/api/v1/", nil, WithTimeout(5*time.Second))

	assert.Equal(t, "http://example.test/api/v1", c.BaseURL())
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
}

func TestGet_AttachesBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/things", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	tokens := &MemoryTokens{}
	require.NoError(t, tokens.SetTokens("access-1", "refresh-1"))
	c := NewClient(server.URL+"/api/v1", tokens)

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/things", &out))
	assert.Equal(t, "yes", out["ok"])
}

func TestGet_NoTokenNoAuthorizationHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	require.NoError(t, c.Get(context.Background(), "/ping", nil))
}

func TestUnauthorized_ClearsTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"Token expired"}`))
	}))
	defer server.Close()

	tokens := &MemoryTokens{}
	tokens.SetTokens("stale", "stale-refresh")
	c := NewClient(server.URL, tokens)

	err := c.Get(context.Background(), "/auth/me", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Token expired", apiErr.Message)
	assert.Empty(t, tokens.AccessToken())
	assert.Empty(t, tokens.RefreshToken())
}

func TestErrorStatuses_ReturnAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"forbidden json", http.StatusForbidden, `{"message":"Not allowed"}`, "Not allowed"},
		{"not found error field", http.StatusNotFound, `{"error":"No such business"}`, "No such business"},
		{"server plain text", http.StatusInternalServerError, "boom", "boom"},
		{"empty body", http.StatusBadGateway, "", "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tokens := &MemoryTokens{}
			tokens.SetTokens("keep", "keep")
			c := NewClient(server.URL, tokens)

			err := c.Post(context.Background(), "/x", map[string]string{"a": "b"}, nil)
			require.Error(t, err)
			assert.True(t, IsStatus(err, tt.status))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, "keep", tokens.AccessToken(), "only 401 clears tokens")
		})
	}
}

func TestTransportFailure_StatusZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(url, nil)
	err := c.Get(context.Background(), "/anything", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Unwrap())
}

func TestTimeout_SurfacesAsAPIError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(server.URL, nil, WithTimeout(50*time.Millisecond))
	err := c.Get(context.Background(), "/slow", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "request timed out", apiErr.Message)
}

func TestPutPatchDelete_Methods(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method)
		if r.Method != http.MethodDelete {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "/r", map[string]int{"n": 1}, nil))
	require.NoError(t, c.Patch(ctx, "/r", map[string]int{"n": 2}, nil))
	require.NoError(t, c.Delete(ctx, "/r", nil))

	assert.Equal(t, []string{http.MethodPut, http.MethodPatch, http.MethodDelete}, seen)
}

func TestChat_JSONWithoutFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What is VAT?", req.Message)

		w.Write([]byte(`{"data":{"response":"VAT is 7.5%"}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	resp, err := c.Chat(context.Background(), "What is VAT?", nil)
	require.NoError(t, err)
	assert.Equal(t, "VAT is 7.5%", resp.Data.Response)
}

func TestChat_MultipartWithFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "see attached", r.FormValue("message"))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "receipt.pdf", files[0].Filename)
		assert.Equal(t, "application/pdf", files[0].Header.Get("Content-Type"))
		assert.Equal(t, "photo.png", files[1].Filename)

		f, err := files[0].Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		f.Close()
		assert.Equal(t, []byte("%PDF-1.4"), data)

		w.Write([]byte(`{"data":{"response":"got them"}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	resp, err := c.Chat(context.Background(), "see attached", []models.Attachment{
		{Name: "receipt.pdf", Type: "application/pdf", Data: []byte("%PDF-1.4")},
		{Name: "photo.png", Type: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
	})
	require.NoError(t, err)
	assert.Equal(t, "got them", resp.Data.Response)
}
