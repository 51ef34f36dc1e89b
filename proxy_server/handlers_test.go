package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func proxyRouter(homeserverURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/matrix-login", newLoginProxy(homeserverURL).handleMatrixLogin)
	return r
}

func TestMatrixLoginPassthroughSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/login" {
			t.Fatalf("unexpected upstream path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode forwarded body: %v", err)
		}
		if body["type"] != "m.login.password" || body["user"] != "alice" {
			t.Fatalf("body not passed through: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok1",
			"user_id":      "@alice:example.org",
		})
	}))
	defer upstream.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/matrix-login",
		strings.NewReader(`{"type":"m.login.password","user":"alice","password":"secret"}`))
	proxyRouter(upstream.URL).ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		MatrixAccessToken string `json:"matrixAccessToken"`
		UserID            string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.MatrixAccessToken != "tok1" || resp.UserID != "@alice:example.org" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestMatrixLoginUpstreamRejection(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"errcode": "M_FORBIDDEN", "error": "Invalid password"})
	}))
	defer upstream.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/matrix-login",
		strings.NewReader(`{"type":"m.login.password","user":"alice","password":"wrong"}`))
	proxyRouter(upstream.URL).ServeHTTP(w, req)

	if w.Code != 500 {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp struct {
		Error   string          `json:"error"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "Matrix login failed" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
	if !strings.Contains(string(resp.Details), "M_FORBIDDEN") {
		t.Fatalf("expected upstream details, got %s", resp.Details)
	}
}

func TestMatrixLoginUpstreamUnreachable(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/matrix-login", strings.NewReader(`{}`))
	proxyRouter("http://127.0.0.1:1").ServeHTTP(w, req)

	if w.Code != 500 {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Server error during Matrix login") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
