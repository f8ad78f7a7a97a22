package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type replyCall struct {
	userID string
	text   string
}

type mockReplier struct {
	mu    sync.Mutex
	calls []replyCall
	err   error
	done  chan struct{}
}

func (m *mockReplier) Reply(_ context.Context, userID, text string) error {
	m.mu.Lock()
	m.calls = append(m.calls, replyCall{userID: userID, text: text})
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.err
}

func (m *mockReplier) snapshot() []replyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]replyCall(nil), m.calls...)
}

func setupWebhookRouter(replier Replier, async bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(zap.NewNop(), "MySuperSecretToken", replier, async)
	return NewRouter(zap.NewNop(), h)
}

func TestWebhookVerify(t *testing.T) {
	r := setupWebhookRouter(&mockReplier{}, false)

	cases := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{
			name:     "valid handshake echoes challenge",
			query:    "?hub.mode=subscribe&hub.verify_token=MySuperSecretToken&hub.challenge=1158201444",
			wantCode: http.StatusOK,
			wantBody: "1158201444",
		},
		{
			name:     "wrong token",
			query:    "?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1",
			wantCode: http.StatusForbidden,
			wantBody: "verification token mismatch",
		},
		{
			name:     "wrong mode",
			query:    "?hub.mode=unsubscribe&hub.verify_token=MySuperSecretToken&hub.challenge=1",
			wantCode: http.StatusForbidden,
			wantBody: "verification token mismatch",
		},
		{
			name:     "missing params",
			query:    "",
			wantCode: http.StatusForbidden,
			wantBody: "verification token mismatch",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook"+tc.query, nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			if rec.Body.String() != tc.wantBody {
				t.Fatalf("expected body %q, got %q", tc.wantBody, rec.Body.String())
			}
		})
	}
}

func TestWebhookVerify_EmptyConfiguredTokenRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler(zap.NewNop(), "", &mockReplier{}, false)
	r := NewRouter(zap.NewNop(), h)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

const pagePayload = `{
  "object": "page",
  "entry": [
    {
      "id": "PAGE",
      "time": 1700000000,
      "messaging": [
        {"sender": {"id": "U1"}, "recipient": {"id": "PAGE"}, "timestamp": 1, "message": {"mid": "m1", "text": "hello"}},
        {"sender": {"id": "PAGE"}, "recipient": {"id": "U1"}, "timestamp": 2, "message": {"mid": "m2", "text": "echoed", "is_echo": true}},
        {"sender": {"id": "U2"}, "recipient": {"id": "PAGE"}, "timestamp": 3}
      ]
    },
    {
      "id": "PAGE",
      "time": 1700000001,
      "messaging": [
        {"sender": {"id": "U2"}, "recipient": {"id": "PAGE"}, "timestamp": 4, "message": {"mid": "m3", "text": "hola"}}
      ]
    }
  ]
}`

func TestWebhookReceive_DispatchesTextMessages(t *testing.T) {
	replier := &mockReplier{err: errors.New("send failed")}
	r := setupWebhookRouter(replier, false)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(pagePayload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even when replies fail, got %d", rec.Code)
	}
	if rec.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("expected EVENT_RECEIVED, got %q", rec.Body.String())
	}
	calls := replier.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 dispatched messages, got %+v", calls)
	}
	if calls[0] != (replyCall{userID: "U1", text: "hello"}) || calls[1] != (replyCall{userID: "U2", text: "hola"}) {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestWebhookReceive_Async(t *testing.T) {
	replier := &mockReplier{done: make(chan struct{}, 2)}
	r := setupWebhookRouter(replier, true)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(pagePayload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-replier.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for async dispatch %d", i)
		}
	}
	if len(replier.snapshot()) != 2 {
		t.Fatalf("expected 2 dispatched messages")
	}
}

type blockingReplier struct {
	started chan struct{}
	release chan struct{}
	done    chan struct{}
}

func (b *blockingReplier) Reply(context.Context, string, string) error {
	b.started <- struct{}{}
	<-b.release
	close(b.done)
	return nil
}

func TestWebhookHandlerWait_DrainsAsyncReplies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	replier := &blockingReplier{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	h := NewWebhookHandler(zap.NewNop(), "MySuperSecretToken", replier, true)
	r := NewRouter(zap.NewNop(), h)

	body := `{"object":"page","entry":[{"id":"PAGE","messaging":[{"sender":{"id":"U1"},"message":{"mid":"m1","text":"hello"}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	select {
	case <-replier.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for async dispatch")
	}

	t.Run("times out while a reply is in flight", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("returns once the reply finishes", func(t *testing.T) {
		close(replier.release)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.Wait(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		select {
		case <-replier.done:
		default:
			t.Fatalf("Wait returned before the reply completed")
		}
	})
}

func TestWebhookReceive_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{name: "malformed json", body: `{"object":`, wantCode: http.StatusBadRequest, wantBody: "invalid payload"},
		{
			name:     "non page object is acknowledged",
			body:     `{"object":"instagram","entry":[{"id":"X","messaging":[{"sender":{"id":"U1"},"message":{"mid":"m1","text":"hi"}}]}]}`,
			wantCode: http.StatusOK,
			wantBody: "EVENT_RECEIVED",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			replier := &mockReplier{}
			r := setupWebhookRouter(replier, false)

			req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			if rec.Body.String() != tc.wantBody {
				t.Fatalf("expected body %q, got %q", tc.wantBody, rec.Body.String())
			}
			if len(replier.snapshot()) != 0 {
				t.Fatalf("expected no dispatch")
			}
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	r := setupWebhookRouter(&mockReplier{}, false)

	for _, path := range []string{"/", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
