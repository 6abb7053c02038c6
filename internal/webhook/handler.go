// Package webhook provides the HTTP handler for Meta/Instagram webhook
// verification and comment notification processing.
//
// Verification (GET):
//
//	Meta sends hub.mode, hub.verify_token, and hub.challenge as query
//	parameters. The handler validates the verify token and responds with
//	the challenge value.
//
// Event Notification (POST):
//
//	Meta sends a JSON payload signed with X-Hub-Signature-256 (HMAC-SHA256
//	using the App Secret). The handler validates the signature, extracts
//	comment events, and runs each through the automation pipeline. The
//	response acknowledges receipt; it never reports per-comment outcomes.
//
// Reference: https://developers.facebook.com/docs/instagram-platform/webhooks
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/replyflow/replyflow/internal/automation"
	"github.com/replyflow/replyflow/internal/metrics"
)

// maxBodySize is the maximum allowed request body size (1 MB).
// Meta batches up to 1000 updates per notification, which should stay well
// under this limit.
const maxBodySize = 1 << 20 // 1 MB

// Processor runs one canonical comment event through the pipeline.
type Processor interface {
	Process(ctx context.Context, ev automation.CommentEvent) (automation.Outcome, error)
}

// Handler handles Meta webhook verification and comment notifications.
type Handler struct {
	verifyToken string
	appSecret   string
	pipeline    Processor
}

// NewHandler creates a webhook handler.
//
// verifyToken is a user-chosen string that must match the Verify Token
// configured in the Meta App Dashboard.
//
// appSecret is the Instagram App Secret from the Meta Developer Dashboard,
// used to validate X-Hub-Signature-256 on POST event notifications.
func NewHandler(verifyToken, appSecret string, pipeline Processor) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		pipeline:    pipeline,
	}
}

// ServeHTTP dispatches to verification (GET) or event handling (POST).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVerification processes the Meta webhook verification handshake.
//
// Meta sends:
//
//	GET /webhook?hub.mode=subscribe&hub.verify_token=<token>&hub.challenge=<challenge>
//
// The handler must respond with the hub.challenge value if the verify token
// matches, or 403 if it does not.
func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || challenge == "" {
		log.Warn().
			Str("mode", mode).
			Str("challenge", challenge).
			Msg("Webhook verification missing required parameters")
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	if mode != "subscribe" {
		log.Warn().Str("mode", mode).Msg("Webhook verification unexpected mode")
		http.Error(w, "invalid mode", http.StatusBadRequest)
		return
	}

	if token != h.verifyToken {
		log.Warn().Msg("Webhook verification failed: invalid verify token")
		http.Error(w, "invalid verify token", http.StatusForbidden)
		return
	}

	log.Info().Msg("Webhook verification successful")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// handleEvent processes incoming comment notifications.
//
// The signature is validated before the body is parsed; an unsigned or
// badly signed request touches nothing downstream. Once verified, every
// comment event in the batch runs through the pipeline in order. A
// terminal no-op (no campaign, no match, suppressed) and a recorded
// dispatch failure both acknowledge with 200 so Meta does not redeliver;
// only an unexpected internal failure returns 500.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Webhook event: failed to read body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		log.Warn().Msg("Webhook event: empty body")
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		log.Warn().Msg("Webhook event: missing X-Hub-Signature-256 header")
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}

	if !h.verifySignature(body, signature) {
		log.Warn().Msg("Webhook event: invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	// A verified body that does not decode is malformed provider input,
	// not an error: acking it keeps Meta from redelivering an undecodable
	// payload forever.
	events, err := parseCommentEvents(body)
	if err != nil {
		log.Warn().Err(err).Int("bodySize", len(body)).Msg("Webhook event: unparseable body, acknowledging without processing")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("EVENT_RECEIVED"))
		return
	}

	rec := metrics.New("ReplyFlow/Webhook")
	rec.Metric("CommentEvents", float64(len(events)), metrics.UnitCount)
	defer rec.Flush()

	processStart := time.Now()
	defer func() {
		rec.Duration("ProcessingTime", time.Since(processStart))
	}()

	for _, ev := range events {
		outcome, err := h.pipeline.Process(r.Context(), ev)
		if err != nil {
			log.Error().
				Err(err).
				Str("commentId", ev.CommentID).
				Str("mediaId", ev.MediaID).
				Msg("Webhook event: pipeline failure")
			rec.Count("PipelineErrors")
			// 500 so Meta redelivers the notification. Processing is
			// idempotent per comment, so replays are safe.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal error"}`))
			return
		}
		rec.Count("Outcome_" + string(outcome))
		log.Info().
			Str("commentId", ev.CommentID).
			Str("mediaId", ev.MediaID).
			Str("outcome", string(outcome)).
			Msg("Comment event processed")
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

// verifySignature validates the X-Hub-Signature-256 header value against
// the HMAC-SHA256 of the body using the App Secret.
//
// The header format is: "sha256=<hex-encoded hash>"
//
// Uses hmac.Equal for constant-time comparison to prevent timing attacks.
func (h *Handler) verifySignature(body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	receivedBytes, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	return hmac.Equal(receivedBytes, mac.Sum(nil))
}
