package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"taxosort/internal/services"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "IMG_0001.jpg")
	if err := os.WriteFile(path, []byte("fake-jpeg"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestClientPredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected request id header")
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Rank != RankFamily || req.Filename != "IMG_0001.jpg" || req.FilterID != "f-1" {
			t.Errorf("unexpected request %+v", req)
		}
		if data, _ := base64.StdEncoding.DecodeString(req.Image); string(data) != "fake-jpeg" {
			t.Errorf("unexpected image payload %q", data)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions": []map[string]any{
				{"label": "Vespidae", "score": 0.81},
				{"label": "Apidae", "score": 0.12},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", Token: "secret"})
	preds, err := client.Predict(context.Background(), writeImage(t), RankFamily, &Filter{ID: "f-1", Rank: RankFamily})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	if preds[0].Rank != RankFamily || preds[0].Label != "Vespidae" || preds[0].Score != 0.81 {
		t.Fatalf("unexpected first prediction %+v", preds[0])
	}
}

func TestClientPredictRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("model loading"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": []any{}})
	}))
	defer server.Close()

	var delays []time.Duration
	var outcomes []string
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(4),
		WithRetryBackoff(100*time.Millisecond, time.Second),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
		WithObserver(func(op string, rank Rank, outcome string, _ time.Duration) { outcomes = append(outcomes, outcome) }),
	)
	preds, err := client.Predict(context.Background(), writeImage(t), RankOrder, nil)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if len(preds) != 0 {
		t.Fatalf("expected empty predictions, got %v", preds)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("unexpected backoff delays %v", delays)
	}
	if len(outcomes) != 3 || outcomes[0] != OutcomeRetry || outcomes[2] != OutcomeOK {
		t.Fatalf("unexpected observer outcomes %v", outcomes)
	}
}

func TestClientPredictGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(3),
		WithRetryBackoff(100*time.Millisecond, 2*time.Second),
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)
	_, err := client.Predict(context.Background(), writeImage(t), RankFamily, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	for _, d := range delays {
		if d != 2*time.Second {
			t.Fatalf("expected Retry-After capped at max delay, got %v", delays)
		}
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown label"}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	_, err := client.InclusionFilter(context.Background(), RankFamily, []string{"Nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestClientPredictRejectsOutOfRangeScores(t *testing.T) {
	for _, score := range []float64{1.7, -0.1} {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"predictions": []map[string]any{
					{"label": "Apidae", "score": 0.4},
					{"label": "Vespidae", "score": score},
				},
			})
		}))

		client := NewClient(Config{BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
		_, err := client.Predict(context.Background(), writeImage(t), RankFamily, nil)
		server.Close()
		if !errors.Is(err, services.ErrExternalTool) {
			t.Fatalf("score %v: expected external tool error, got %v", score, err)
		}
		if !strings.Contains(err.Error(), "malformed response") {
			t.Fatalf("score %v: expected malformed response, got %v", score, err)
		}
		if calls.Load() != 1 {
			t.Fatalf("score %v: expected no retry, got %d calls", score, calls.Load())
		}
	}
}

func TestClientPredictMissingImage(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Predict(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), RankFamily, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientVocabularyAndFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/labels":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ranks": map[string][]string{
					"family": {"Apidae", "Vespidae"},
					"order":  {"Hymenoptera"},
					"genus":  {"Apis"},
				},
			})
		case "/v1/filters":
			var req filterRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Rank != RankFamily || len(req.Labels) != 1 {
				t.Errorf("unexpected filter request %+v", req)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "filter-7"})
		case "/v1/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	vocab, err := client.Vocabulary(context.Background())
	if err != nil {
		t.Fatalf("Vocabulary returned error: %v", err)
	}
	if !vocab.Contains(RankFamily, "Vespidae") || !vocab.Contains(RankOrder, "Hymenoptera") {
		t.Fatalf("unexpected vocabulary %v", vocab)
	}
	if len(vocab) != 2 {
		t.Fatalf("expected unknown ranks to be skipped, got %v", vocab)
	}

	filter, err := client.InclusionFilter(context.Background(), RankFamily, []string{"Apidae"})
	if err != nil {
		t.Fatalf("InclusionFilter returned error: %v", err)
	}
	if filter.ID != "filter-7" || filter.Rank != RankFamily {
		t.Fatalf("unexpected filter %+v", filter)
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	client := NewClient(Config{}, WithRetryBackoff(time.Second, 3*time.Second))
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, expected := range want {
		if got := client.backoffDelay(i + 1); got != expected {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, expected)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("5"); !ok || d != 5*time.Second {
		t.Fatalf("unexpected seconds parse: %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatal("expected negative value to be rejected")
	}
	if _, ok := parseRetryAfter("soon"); ok {
		t.Fatal("expected garbage to be rejected")
	}
}
