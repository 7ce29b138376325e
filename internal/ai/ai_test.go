package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain json untouched",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "json fence",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "bare fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "surrounding whitespace",
			in:   "  \n```json\n{\"a\": 1}\n```\n  ",
			want: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var parsed struct {
		Container string `json:"container"`
	}

	if err := DecodeJSON("```json\n{\"container\": \".event\"}\n```", &parsed); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if parsed.Container != ".event" {
		t.Errorf("container = %q", parsed.Container)
	}

	if err := DecodeJSON("the selector is probably .event", &parsed); err == nil {
		t.Error("prose should not decode")
	}
}

func TestComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "  Mon Jan 2  "}}]}`))
	}))
	defer ts.Close()

	client, err := NewClient("test-key", WithBaseURL(ts.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	text, err := client.Complete(context.Background(), "system text", "user text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if text != "Mon Jan 2" {
		t.Errorf("completion = %q, want trimmed content", text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error status", status: http.StatusTooManyRequests, body: `{"error": {"message": "rate limited"}}`},
		{name: "api error envelope", status: http.StatusOK, body: `{"error": {"message": "bad model"}}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client, err := NewClient("test-key", WithBaseURL(ts.URL))
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if _, err := client.Complete(context.Background(), "s", "p"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("expected error for missing api key")
	}
}
