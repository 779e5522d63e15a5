// Package testutil provides a fake TaxPadi backend and database helpers
// shared by tests.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"taxpadi-client/internal/models"
)

// APIPrefix is the path prefix the fake backend serves under
const APIPrefix = "/api/v1"

// RecordedFile is one uploaded multipart file
type RecordedFile struct {
	Name string
	Type string
	Data []byte
}

// RecordedRequest is one request received by the fake backend
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	JSON          map[string]any
	Fields        map[string]string
	Files         []RecordedFile
}

// Backend is an in-process fake of the TaxPadi API
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	requests   []RecordedRequest
	businesses map[string]*models.Business
	chatReply  func(message string, files []RecordedFile) (string, int)
	failAuth   int
	user       models.User
	tokenSeq   int
}

// NewBackend starts a fake backend that is closed when the test ends
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		businesses: make(map[string]*models.Business),
		user: models.User{
			ID:        "user-1",
			Email:     "ada@example.com",
			FirstName: "Ada",
			LastName:  "Obi",
			UserType:  models.UserTypeIndividual,
		},
		chatReply: func(message string, files []RecordedFile) (string, int) {
			return "echo: " + message, http.StatusOK
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+APIPrefix+"/auth/verify-business", b.handleVerifyBusiness)
	mux.HandleFunc("POST "+APIPrefix+"/auth/create-account", b.handleAuth(http.StatusCreated))
	mux.HandleFunc("POST "+APIPrefix+"/auth/login", b.handleAuth(http.StatusOK))
	mux.HandleFunc("POST "+APIPrefix+"/auth/logout", b.handleLogout)
	mux.HandleFunc("GET "+APIPrefix+"/auth/me", b.handleMe)
	mux.HandleFunc("POST "+APIPrefix+"/auth/refresh", b.handleRefresh)
	mux.HandleFunc("POST "+APIPrefix+"/ai/chat", b.handleChat)

	b.Server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the API base URL
func (b *Backend) URL() string {
	return b.Server.URL + APIPrefix
}

// AddBusiness makes code resolve to business
func (b *Backend) AddBusiness(code string, business *models.Business) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.businesses[code] = business
}

// SetChatReply replaces the chat handler's reply function
func (b *Backend) SetChatReply(fn func(message string, files []RecordedFile) (string, int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatReply = fn
}

// FailAuth makes create-account and login answer with status
func (b *Backend) FailAuth(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAuth = status
}

// Requests returns every request received so far
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// RequestsTo returns the requests received for path (without the API prefix)
func (b *Backend) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range b.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

type recordKey struct{}

// record captures each request body before routing it
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := RecordedRequest{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, APIPrefix),
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
		}

		mediaType, params, _ := mime.ParseMediaType(rec.ContentType)
		switch {
		case mediaType == "application/json":
			body, _ := io.ReadAll(r.Body)
			if len(body) > 0 {
				_ = json.Unmarshal(body, &rec.JSON)
			}
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		case mediaType == "multipart/form-data":
			rec.Fields, rec.Files = readMultipart(r.Body, params["boundary"])
		}

		b.mu.Lock()
		b.requests = append(b.requests, rec)
		b.mu.Unlock()

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), recordKey{}, rec)))
	})
}

func readMultipart(body io.Reader, boundary string) (map[string]string, []RecordedFile) {
	fields := make(map[string]string)
	var files []RecordedFile

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		data, _ := io.ReadAll(part)
		if part.FileName() != "" {
			files = append(files, RecordedFile{
				Name: part.FileName(),
				Type: part.Header.Get("Content-Type"),
				Data: data,
			})
		} else {
			fields[part.FormName()] = string(data)
		}
		part.Close()
	}
	return fields, files
}

func (b *Backend) handleVerifyBusiness(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	business := b.businesses[req.Code]
	b.mu.Unlock()

	if business == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Business not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"business": business},
	})
}

func (b *Backend) handleAuth(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		fail := b.failAuth
		user := b.user
		if email, ok := req["email"].(string); ok {
			user.Email = email
		}
		if ut, ok := req["userType"].(string); ok {
			user.UserType = models.UserType(ut)
		}
		b.user = user
		access, refresh := b.nextTokensLocked()
		b.mu.Unlock()

		if fail != 0 {
			writeJSON(w, fail, map[string]any{"success": false, "message": http.StatusText(fail)})
			return
		}

		var resp models.AuthResponse
		resp.Success = true
		resp.Message = "ok"
		resp.Data.User = user
		resp.Data.AccessToken = access
		resp.Data.RefreshToken = refresh
		if name, ok := req["businessName"].(string); ok {
			resp.Data.Business = &models.Business{ID: "business-1", Name: name}
		}
		writeJSON(w, status, resp)
	}
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
		return
	}
	b.mu.Lock()
	user := b.user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": user})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RefreshToken == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid refresh token"})
		return
	}

	b.mu.Lock()
	access, refresh := b.nextTokensLocked()
	b.mu.Unlock()

	var resp models.RefreshTokenResponse
	resp.Success = true
	resp.Data.AccessToken = access
	resp.Data.RefreshToken = refresh
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	last, _ := r.Context().Value(recordKey{}).(RecordedRequest)

	message := last.Fields["message"]
	if last.JSON != nil {
		message, _ = last.JSON["message"].(string)
	}

	b.mu.Lock()
	reply := b.chatReply
	b.mu.Unlock()

	text, status := reply(message, last.Files)
	if status != http.StatusOK {
		writeJSON(w, status, map[string]any{"success": false, "message": text})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"response": text}})
}

func (b *Backend) nextTokensLocked() (string, string) {
	b.tokenSeq++
	n := string(rune('0' + b.tokenSeq%10))
	return "access-" + n, "refresh-" + n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
