package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/BDNK1/autoflow/runtime"
)

func TestFlattenToFormData(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected map[string]string
	}{
		{
			name: "simple values",
			input: map[string]any{
				"amount":   1099,
				"currency": "usd",
			},
			expected: map[string]string{
				"amount":   "1099",
				"currency": "usd",
			},
		},
		{
			name: "nested map",
			input: map[string]any{
				"amount": 1099,
				"metadata": map[string]any{
					"order_id": "12345",
					"user":     "john",
				},
			},
			expected: map[string]string{
				"amount":             "1099",
				"metadata[order_id]": "12345",
				"metadata[user]":     "john",
			},
		},
		{
			name: "deeply nested",
			input: map[string]any{
				"shipping": map[string]any{
					"address": map[string]any{
						"city":    "NYC",
						"country": "US",
					},
				},
			},
			expected: map[string]string{
				"shipping[address][city]":    "NYC",
				"shipping[address][country]": "US",
			},
		},
		{
			name: "array values",
			input: map[string]any{
				"items": []any{"item1", "item2"},
			},
			expected: map[string]string{
				"items[0]": "item1",
				"items[1]": "item2",
			},
		},
		{
			name: "array of objects",
			input: map[string]any{
				"line_items": []any{
					map[string]any{"price": "price_123", "quantity": 2},
					map[string]any{"price": "price_456", "quantity": 1},
				},
			},
			expected: map[string]string{
				"line_items[0][price]":    "price_123",
				"line_items[0][quantity]": "2",
				"line_items[1][price]":    "price_456",
				"line_items[1][quantity]": "1",
			},
		},
		{
			name: "stripe payment intent example",
			input: map[string]any{
				"amount":               1099,
				"currency":             "usd",
				"payment_method_types": []any{"card"},
				"metadata": map[string]any{
					"order_id": "order_123",
				},
			},
			expected: map[string]string{
				"amount":                  "1099",
				"currency":                "usd",
				"payment_method_types[0]": "card",
				"metadata[order_id]":      "order_123",
			},
		},
		{
			name:     "empty map",
			input:    map[string]any{},
			expected: map[string]string{},
		},
		{
			name: "boolean and float",
			input: map[string]any{
				"enabled": true,
				"rate":    0.15,
			},
			expected: map[string]string{
				"enabled": "true",
				"rate":    "0.15",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := flattenToFormData(tt.input, "")

			if len(result) != len(tt.expected) {
				t.Errorf("length mismatch: got %d, want %d\ngot: %v\nwant: %v",
					len(result), len(tt.expected), result, tt.expected)
				return
			}

			for key, expectedVal := range tt.expected {
				if gotVal, ok := result[key]; !ok {
					t.Errorf("missing key %q", key)
				} else if gotVal != expectedVal {
					t.Errorf("key %q: got %q, want %q", key, gotVal, expectedVal)
				}
			}
		})
	}
}

func newTestTransport() *Transport {
	return NewTransport(Config{Timeout: 5 * time.Second, UserAgent: "autoflow-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTransport_JSONRoundTrip(t *testing.T) {
	var gotBody map[string]any
	var gotHeader, gotUA string
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotHeader = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"message":{"ts":"123.456"}}`))
	}))
	defer srv.Close()

	resp, err := newTestTransport().Do(context.Background(), &runtime.Request{
		Method:  "POST",
		URL:     srv.URL + "/chat.postMessage",
		Headers: map[string]string{"Authorization": "Bearer xoxb"},
		Body:    map[string]any{"channel": "C1", "text": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotHeader != "Bearer xoxb" || gotUA != "autoflow-test" {
		t.Errorf("headers = %q / %q", gotHeader, gotUA)
	}
	if gotBody["channel"] != "C1" {
		t.Errorf("server saw body %v", gotBody)
	}
	body, ok := resp.Body.(map[string]any)
	if !ok || body["ok"] != true {
		t.Fatalf("decoded body = %#v", resp.Body)
	}
	if body["message"].(map[string]any)["ts"] != "123.456" {
		t.Errorf("nested field = %v", body["message"])
	}
}

func TestTransport_FormBody(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	resp, err := newTestTransport().Do(context.Background(), &runtime.Request{
		Method: "POST",
		URL:    srv.URL,
		Body:   map[string]any{"amount": 1099, "metadata": map[string]any{"order_id": "o-1"}},
		Form:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if form.Get("amount") != "1099" || form.Get("metadata[order_id]") != "o-1" {
		t.Errorf("form = %v", form)
	}
	if resp.Body != "accepted" {
		t.Errorf("text body = %#v", resp.Body)
	}
}

func TestTransport_Errors(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/limited":
			w.WriteHeader(nethttp.StatusTooManyRequests)
			w.Write([]byte(`{"error":"ratelimited"}`))
		case "/empty":
			w.WriteHeader(nethttp.StatusNoContent)
		default:
			w.WriteHeader(nethttp.StatusInternalServerError)
		}
	}))
	closed := httptest.NewServer(nethttp.NotFoundHandler())
	closed.Close()
	defer srv.Close()

	tests := []struct {
		name     string
		url      string
		wantCode runtime.FlowErrorCode
	}{
		{"client error status", srv.URL + "/limited", runtime.ErrorCodeHTTPStatus},
		{"server error status", srv.URL + "/boom", runtime.ErrorCodeHTTPStatus},
		{"no content is success", srv.URL + "/empty", ""},
		{"connection refused", closed.URL, runtime.ErrorCodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := newTestTransport().Do(context.Background(), &runtime.Request{Method: "GET", URL: tt.url})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Body != nil {
					t.Errorf("body = %#v, want nil", resp.Body)
				}
				return
			}

			fe, ok := runtime.AsFlowError(err)
			if !ok {
				t.Fatalf("err = %v, want FlowError", err)
			}
			if fe.Code != tt.wantCode || !fe.Retryable() {
				t.Errorf("error = %s retryable=%v, want retryable %s", fe.Code, fe.Retryable(), tt.wantCode)
			}
		})
	}
}

func TestTransport_ErrorBodyAttached(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusBadRequest)
		w.Write([]byte(`{"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	_, err := newTestTransport().Do(context.Background(), &runtime.Request{Method: "GET", URL: srv.URL})
	fe, _ := runtime.AsFlowError(err)
	if fe == nil || fe.Meta["status_code"] != nethttp.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if body, _ := fe.Meta["body"].(map[string]any); body["error"] != "channel_not_found" {
		t.Errorf("meta body = %v", fe.Meta["body"])
	}
}

func TestTransport_Cancelled(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestTransport().Do(ctx, &runtime.Request{Method: "GET", URL: srv.URL})
	if !runtime.IsCancelled(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
}
