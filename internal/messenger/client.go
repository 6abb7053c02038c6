// Package messenger provides a client for the Instagram Graph API
// messaging endpoint used to deliver keyword-triggered DMs.
//
// The send call is deliberately single-shot: there is no internal retry.
// A transport failure or API error is captured in the DeliveryResult and
// recorded by the caller; re-dispatch is an explicit, separate feature.
//
// Reference: https://developers.facebook.com/docs/instagram-platform/instagram-api-with-instagram-login/messaging
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultBaseURL is the Instagram Graph API base URL.
	defaultBaseURL = "https://graph.instagram.com/v23.0"

	// defaultTimeout bounds the outbound send so a slow provider cannot
	// hold the webhook response open past the provider's retry deadline.
	defaultTimeout = 10 * time.Second
)

// Client issues DM sends through the Graph API. Construct once per
// process and reuse; it is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a messaging client with the default endpoint and
// timeout. Credentials are supplied per call, not held by the client:
// each send uses the owning account's decrypted token.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: defaultBaseURL,
	}
}

// DeliveryResult captures the outcome of one DM send. ErrorDetail holds
// the provider's error message verbatim when the API rejected the send,
// or the transport error text when the call never completed.
type DeliveryResult struct {
	OK          bool
	ErrorDetail string
}

// sendRequest is the messaging API request body.
type sendRequest struct {
	Recipient   recipient   `json:"recipient"`
	Message     messageBody `json:"message"`
	AccessToken string      `json:"access_token"`
}

type recipient struct {
	ID string `json:"id"`
}

type messageBody struct {
	Text string `json:"text"`
}

// sendResponse is the messaging API response body.
type sendResponse struct {
	RecipientID string  `json:"recipient_id,omitempty"`
	MessageID   string  `json:"message_id,omitempty"`
	Error       *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// SendDM sends a text DM from the business account to the given recipient,
// synchronously awaiting the response. A 2xx response is a successful
// delivery; anything else is captured in the result, never raised.
func (c *Client) SendDM(ctx context.Context, igBusinessID, recipientID, text, accessToken string) DeliveryResult {
	startTime := time.Now()

	payload, err := json.Marshal(sendRequest{
		Recipient:   recipient{ID: recipientID},
		Message:     messageBody{Text: text},
		AccessToken: accessToken,
	})
	if err != nil {
		return DeliveryResult{ErrorDetail: fmt.Sprintf("encode request: %v", err)}
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, igBusinessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return DeliveryResult{ErrorDetail: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Messaging API response")
		return DeliveryResult{ErrorDetail: fmt.Sprintf("request failed: %v", err)}
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Messaging API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return DeliveryResult{ErrorDetail: fmt.Sprintf("read response: %v", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var resp sendResponse
		if json.Unmarshal(body, &resp) == nil && resp.Error != nil && resp.Error.Message != "" {
			log.Warn().
				Str("errorMessage", resp.Error.Message).
				Str("errorType", resp.Error.Type).
				Int("errorCode", resp.Error.Code).
				Msg("Messaging API error")
			// The provider's message is recorded verbatim as the error
			// detail shown in delivery analytics.
			return DeliveryResult{ErrorDetail: resp.Error.Message}
		}
		return DeliveryResult{ErrorDetail: fmt.Sprintf("unexpected status %d: %s", httpResp.StatusCode, truncate(string(body), 200))}
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// A 2xx with an unparseable body still counts as delivered; the
		// message ID is only used for debug logging.
		log.Warn().Err(err).Msg("Messaging API returned 2xx with unparseable body")
		return DeliveryResult{OK: true}
	}

	log.Debug().Str("providerMessageId", resp.MessageID).Str("recipientId", resp.RecipientID).Msg("DM accepted by provider")
	return DeliveryResult{OK: true}
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
