package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/service"
	"app/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

func newAIServer(t *testing.T, svc service.AIService) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	h := NewAIHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	h.RegisterRoutes(mux, middleware.AuthMiddleware(testJWTSecret))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postAI(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()

	token, err := util.SignJWT("u1", testJWTSecret, time.Minute)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/ai", strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sending request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAIHandlerSuccess(t *testing.T) {
	srv := newAIServer(t, &fakeAIService{deltas: []string{"hi there"}})

	resp := postAI(t, srv, `{"question":"hello"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Text != "hi there" || body.Model != "m" {
		t.Errorf("body = %+v", body)
	}
}

func TestAIHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *apperr.Error
		wantStatus int
	}{
		{"plan restriction", apperr.PlanRestriction("not on this plan"), 403},
		{"quota", apperr.QuotaExceeded("limit reached"), 402},
		{"concurrency", apperr.TooManyConcurrent(2), 429},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAIServer(t, &fakeAIService{respondErr: tt.err})

			resp := postAI(t, srv, `{"question":"hello"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body struct {
				Status int    `json:"status"`
				Error  string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body.Status != tt.wantStatus || body.Error == "" {
				t.Errorf("error body = %+v", body)
			}
		})
	}
}

func TestAIHandlerRetryAfterHeader(t *testing.T) {
	srv := newAIServer(t, &fakeAIService{respondErr: apperr.RateLimited(30 * time.Second)})

	resp := postAI(t, srv, `{"question":"hello"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want %q", got, "30")
	}
}

func TestAIHandlerBadJSON(t *testing.T) {
	srv := newAIServer(t, &fakeAIService{})

	resp := postAI(t, srv, `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAIHandlerInvalidTurnSource(t *testing.T) {
	srv := newAIServer(t, &fakeAIService{})

	resp := postAI(t, srv, `{"turns":[{"source":"tv","text":"hi"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAIHandlerUnauthorized(t *testing.T) {
	srv := newAIServer(t, &fakeAIService{})

	resp, err := http.Post(srv.URL+"/ai", "application/json", strings.NewReader(`{"question":"hi"}`))
	if err != nil {
		t.Fatalf("sending request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
