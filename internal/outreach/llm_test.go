package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/metrics"
	"github.com/airrygarments/stylematch/internal/models"
)

func chatServer(t *testing.T, reply string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		choices := []map[string]any{}
		if reply != "" {
			choices = append(choices, map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": choices,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewLLM_requiresKeyAndModel(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.OutreachConfig
	}{
		{"nil config", nil},
		{"no key", &config.OutreachConfig{Model: "m"}},
		{"no model", &config.OutreachConfig{APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLLM(tt.cfg, nil); !errors.Is(err, models.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestLLM_Complete(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, "hello there", &req)

	llm, err := NewLLM(&config.OutreachConfig{
		BaseURL:   srv.URL + "/v1/",
		APIKey:    "test-key",
		Model:     "test-model",
		MaxTokens: 64,
	}, metrics.New())
	if err != nil {
		t.Fatal(err)
	}
	if llm.Model() != "test-model" {
		t.Errorf("Model() = %s", llm.Model())
	}

	out, err := llm.Complete(context.Background(), OpComposeEmail, "write something")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello there" {
		t.Errorf("reply = %q", out)
	}
	if req["model"] != "test-model" {
		t.Errorf("model = %v", req["model"])
	}
	if temp, ok := req["temperature"].(float64); !ok || temp <= 0 || temp > 1e-30 {
		t.Errorf("temperature = %v, want a near-zero value on the wire", req["temperature"])
	}
	msgs, _ := req["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", req["messages"])
	}
	msg := msgs[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "write something" {
		t.Errorf("message = %v", msg)
	}
}

func TestLLM_Complete_noChoices(t *testing.T) {
	srv := chatServer(t, "", nil)
	llm, err := NewLLM(&config.OutreachConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "m"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = llm.Complete(context.Background(), OpExtractClient, "x")
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("err = %v, want no choices error", err)
	}
}

func TestLLM_Complete_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	llm, err := NewLLM(&config.OutreachConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "m"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := llm.Complete(context.Background(), OpExtractProduct, "x"); err == nil {
		t.Error("expected error for 401 response")
	}
}
