package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSend_PostEncodesBodyAndDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/clients/1/requests" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("expected request id header to be set")
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["code_text"] != "int main(){}" {
			t.Errorf("expected code_text in body, got %v", body)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"request_id": 42})
	}))
	defer server.Close()

	c := New(server.URL + "/")
	var out struct {
		RequestID int64 `json:"request_id"`
	}
	err := c.post(context.Background(), "/clients/1/requests", map[string]string{"code_text": "int main(){}"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.RequestID != 42 {
		t.Errorf("expected request_id 42, got %d", out.RequestID)
	}
}

func TestSend_GetHasNoBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			t.Errorf("expected empty body on GET, got length %d", r.ContentLength)
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	var out []int
	if err := New(server.URL).get(context.Background(), "/providers/3/requests", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSend_4xxIsRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("<!doctype html><title>400 Bad Request</title><p>Request not open for bidding</p>"))
	}))
	defer server.Close()

	err := New(server.URL).post(context.Background(), "/providers/3/requests/42/bids", map[string]any{"price": 1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected *RejectionError, got %T: %v", err, err)
	}
	if rej.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rej.StatusCode)
	}
	if !strings.Contains(rej.Message, "Request not open for bidding") {
		t.Errorf("expected server message, got %q", rej.Message)
	}
	if IsTransport(err) {
		t.Error("rejection must not be classified as transport error")
	}
}

func TestSend_4xxJSONMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"bid already accepted"}`))
	}))
	defer server.Close()

	err := New(server.URL).post(context.Background(), "/x", struct{}{}, nil)
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Message != "bid already accepted" {
		t.Errorf("unexpected message %q", rej.Message)
	}
}

func TestSend_5xxIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL).get(context.Background(), "/x", nil)
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if IsRejection(err) {
		t.Error("5xx must not be classified as rejection")
	}
}

func TestSend_UnparseableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	var out map[string]any
	err := New(server.URL).get(context.Background(), "/x", &out)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 recorded, got %d", te.StatusCode)
	}
}

func TestSend_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := New(url).get(context.Background(), "/x", nil)
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	err := New(server.URL, WithTimeout(50*time.Millisecond)).get(context.Background(), "/slow", nil)
	if !IsTransport(err) {
		t.Fatalf("expected transport error on timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout was not enforced, took %v", time.Since(start))
	}
}

func TestSend_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(server.URL, WithRateLimit(0.001, 1))

	// First request consumes the burst.
	if err := c.get(context.Background(), "/x", nil); err != nil {
		t.Fatalf("first request failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.get(ctx, "/x", nil); !IsTransport(err) {
		t.Errorf("expected transport error when limiter wait exceeds deadline, got %v", err)
	}
}

func TestRejectionError_Message(t *testing.T) {
	e := &RejectionError{Method: "POST", Path: "/x", StatusCode: 404}
	if !strings.Contains(e.Error(), "404") {
		t.Errorf("expected status in error string, got %s", e.Error())
	}
}

func TestSend_LongErrorBodyTruncatedOnRuneBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("é", 300)))
	}))
	defer server.Close()

	err := New(server.URL).get(context.Background(), "/x", nil)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	msg := te.Err.Error()
	if !utf8.ValidString(msg) {
		t.Errorf("truncated message is not valid UTF-8: %q", msg)
	}
	if !strings.HasSuffix(msg, strings.Repeat("é", 200)+"...") {
		t.Errorf("expected 200 runes and an ellipsis, got %q", msg)
	}
}

// get is Send with GET and no body.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.Send(ctx, http.MethodGet, path, nil, out)
}

// post is Send with POST.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.Send(ctx, http.MethodPost, path, body, out)
}
