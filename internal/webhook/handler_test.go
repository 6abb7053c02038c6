package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/replyflow/replyflow/internal/automation"
)

const (
	testVerifyToken = "my_test_verify_token"
	testAppSecret   = "my_test_app_secret"
)

// fakePipeline records the events it was asked to process.
type fakePipeline struct {
	outcome automation.Outcome
	err     error
	events  []automation.CommentEvent
}

func (f *fakePipeline) Process(ctx context.Context, ev automation.CommentEvent) (automation.Outcome, error) {
	f.events = append(f.events, ev)
	return f.outcome, f.err
}

func newTestHandler(p *fakePipeline) *Handler {
	return NewHandler(testVerifyToken, testAppSecret, p)
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const commentPayload = `{"object":"instagram","entry":[{"id":"ig-1","time":1520383571,"changes":[{"field":"comments","value":{"id":"c-1","text":"Quero o link!","from":{"id":"u-1","username":"joao_123"},"media":{"id":"m-1"}}}]}]}`

// --- Verification (GET) Tests ---

func TestVerification_ValidToken(t *testing.T) {
	h := newTestHandler(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=1158201444",
		nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "1158201444" {
		t.Errorf("expected challenge '1158201444', got '%s'", body)
	}
}

func TestVerification_InvalidToken(t *testing.T) {
	h := newTestHandler(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong_token&hub.challenge=12345",
		nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rr.Code)
	}
}

func TestVerification_MissingMode(t *testing.T) {
	h := newTestHandler(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.verify_token="+testVerifyToken+"&hub.challenge=12345",
		nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestVerification_InvalidMode(t *testing.T) {
	h := newTestHandler(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=unsubscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=12345",
		nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

// --- Event Notification (POST) Tests ---

func TestEvent_ValidSignatureRunsPipeline(t *testing.T) {
	pipeline := &fakePipeline{outcome: automation.OutcomeSent}
	h := newTestHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentPayload))
	req.Header.Set("X-Hub-Signature-256", signPayload(testAppSecret, commentPayload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if len(pipeline.events) != 1 {
		t.Fatalf("expected 1 pipeline event, got %d", len(pipeline.events))
	}
	ev := pipeline.events[0]
	if ev.MediaID != "m-1" || ev.CommentID != "c-1" || ev.FromUserID != "u-1" || ev.FromUsername != "joao_123" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestEvent_InvalidSignatureTouchesNothing(t *testing.T) {
	pipeline := &fakePipeline{outcome: automation.OutcomeSent}
	h := newTestHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentPayload))
	req.Header.Set("X-Hub-Signature-256", signPayload("wrong_secret", commentPayload))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rr.Code)
	}
	if len(pipeline.events) != 0 {
		t.Errorf("expected pipeline untouched, got %d events", len(pipeline.events))
	}
}

func TestEvent_MissingSignature(t *testing.T) {
	pipeline := &fakePipeline{}
	h := newTestHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentPayload))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rr.Code)
	}
	if len(pipeline.events) != 0 {
		t.Errorf("expected pipeline untouched, got %d events", len(pipeline.events))
	}
}

func TestEvent_EmptyBody(t *testing.T) {
	h := newTestHandler(&fakePipeline{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(""))
	req.Header.Set("X-Hub-Signature-256", "sha256=abc123")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestEvent_MalformedSignaturePrefix(t *testing.T) {
	h := newTestHandler(&fakePipeline{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentPayload))
	req.Header.Set("X-Hub-Signature-256", "md5=abc123")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rr.Code)
	}
}

func TestEvent_NoOpOutcomeStillAcks(t *testing.T) {
	pipeline := &fakePipeline{outcome: automation.OutcomeNoCampaign}
	h := newTestHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentPayload))
	req.Header.Set("X-Hub-Signature-256", signPayload(testAppSecret, commentPayload))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 for terminal no-op, got %d", rr.Code)
	}
}

func TestEvent_PipelineErrorReturns500(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("dynamo unavailable")}
	h := newTestHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(commentPayload))
	req.Header.Set("X-Hub-Signature-256", signPayload(testAppSecret, commentPayload))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}
}

func TestEvent_UnparseableSignedBodyStillAcks(t *testing.T) {
	pipeline := &fakePipeline{outcome: automation.OutcomeSent}
	h := newTestHandler(pipeline)
	payload := `{"entry": [`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", signPayload(testAppSecret, payload))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 ack for malformed-but-signed body, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "EVENT_RECEIVED" {
		t.Errorf("expected EVENT_RECEIVED ack, got %q", body)
	}
	if len(pipeline.events) != 0 {
		t.Errorf("expected no pipeline events for undecodable body, got %d", len(pipeline.events))
	}
}

func TestEvent_NonCommentChangesIgnored(t *testing.T) {
	pipeline := &fakePipeline{outcome: automation.OutcomeSent}
	h := newTestHandler(pipeline)
	payload := `{"object":"instagram","entry":[{"id":"ig-1","changes":[{"field":"mentions","value":{"id":"x"}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", signPayload(testAppSecret, payload))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if len(pipeline.events) != 0 {
		t.Errorf("expected no pipeline events, got %d", len(pipeline.events))
	}
}

// --- Method Tests ---

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakePipeline{})
	req := httptest.NewRequest(http.MethodPut, "/webhook", nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rr.Code)
	}
}
