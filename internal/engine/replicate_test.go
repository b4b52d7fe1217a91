package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func newTestReplicate(t *testing.T, baseURL string) *ReplicateEngine {
	t.Helper()
	eng, err := NewReplicateEngine(EngineReplicate, Config{
		KeyAPIToken:   "tok",
		KeyBaseURL:    baseURL,
		KeyNumOutputs: 1,
	}, nil)
	if err != nil {
		t.Fatalf("NewReplicateEngine error: %v", err)
	}
	eng.retry = fastRetry()
	eng.pollInterval = time.Millisecond
	return eng
}

func TestReplicateGenerateSucceeds(t *testing.T) {
	var outputURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token tok" {
			t.Errorf("Authorization = %q", got)
		}
		var req predictionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Input.Prompt == "" {
			t.Error("prediction request missing prompt")
		}
		_ = json.NewEncoder(w).Encode(predictionResponse{
			ID:     "p1",
			Status: "succeeded",
			Output: []string{outputURL},
		})
	})
	mux.HandleFunc("/outputs/1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	outputURL = srv.URL + "/outputs/1"

	eng := newTestReplicate(t, srv.URL)
	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{
		PositivePrompt: "modern bedroom",
		RequestID:      "r1",
	})
	if !result.Success {
		t.Fatalf("generate failed: %s", result.ErrorMessage)
	}
	if result.EngineUsed != string(EngineReplicate) {
		t.Fatalf("EngineUsed = %q", result.EngineUsed)
	}
	want := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	if len(result.Images) != 1 || result.Images[0] != want {
		t.Fatalf("unexpected images %v", result.Images)
	}
}

func TestReplicatePollsUntilSettled(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(predictionResponse{ID: "p2", Status: "processing"})
	})
	mux.HandleFunc("/predictions/p2", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			_ = json.NewEncoder(w).Encode(predictionResponse{ID: "p2", Status: "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(predictionResponse{
			ID:     "p2",
			Status: "succeeded",
			Output: []string{srv.URL + "/out"},
		})
	})
	mux.HandleFunc("/out", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("img"))
	})

	eng := newTestReplicate(t, srv.URL)
	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{RequestID: "r2"})
	if !result.Success {
		t.Fatalf("generate failed: %s", result.ErrorMessage)
	}
	if atomic.LoadInt32(&polls) < 2 {
		t.Fatalf("expected at least 2 polls, got %d", polls)
	}
}

func TestReplicateRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	eng := newTestReplicate(t, srv.URL)
	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{RequestID: "r3"})
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.ErrorMessage, "create prediction failed") {
		t.Fatalf("ErrorMessage = %q", result.ErrorMessage)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("attempts = %d, want 2 (initial + 1 retry)", got)
	}
}

func TestReplicateDoesNotRetryAuthFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	eng := newTestReplicate(t, srv.URL)
	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{RequestID: "r4"})
	if result.Success {
		t.Fatal("expected failure result")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1 for terminal status", got)
	}
}

func TestReplicateReportsPredictionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(predictionResponse{
			ID:     "p5",
			Status: "failed",
			Error:  "NSFW content detected",
		})
	}))
	defer srv.Close()

	eng := newTestReplicate(t, srv.URL)
	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{RequestID: "r5"})
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.ErrorMessage, "NSFW content detected") {
		t.Fatalf("ErrorMessage = %q", result.ErrorMessage)
	}
}

func TestReplicateModelPresets(t *testing.T) {
	tests := []struct {
		tag  EngineType
		want string
	}{
		{EngineReplicate, replicateDefaultModel},
		{EngineFluxWorking, fluxModel},
		{EngineStateOfTheArt, interiorDesignModel},
	}
	for _, tc := range tests {
		eng, err := NewReplicateEngine(tc.tag, Config{KeyAPIToken: "tok"}, nil)
		if err != nil {
			t.Fatalf("NewReplicateEngine(%s) error: %v", tc.tag, err)
		}
		if eng.model != tc.want {
			t.Fatalf("model for %s = %q, want %q", tc.tag, eng.model, tc.want)
		}
		if info := eng.ModelInfo(); info["engine_type"] != string(tc.tag) {
			t.Fatalf("engine_type = %q", info["engine_type"])
		}
	}

	override, err := NewReplicateEngine(EngineReplicate, Config{KeyAPIToken: "tok", KeyModel: "acme/custom"}, nil)
	if err != nil {
		t.Fatalf("NewReplicateEngine error: %v", err)
	}
	if override.model != "acme/custom" {
		t.Fatalf("model override = %q", override.model)
	}
}
