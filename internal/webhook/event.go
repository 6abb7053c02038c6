package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/replyflow/replyflow/internal/automation"
)

// envelope is the Meta webhook notification body. One POST batches any
// number of entries, each with any number of changes.
type envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// commentValue is the change.value payload for field "comments".
type commentValue struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

// parseCommentEvents extracts canonical comment events from a verified
// webhook body. Changes for other fields are skipped, and a malformed or
// incomplete change is dropped with a warning without affecting its
// siblings. A body that is not valid JSON at all returns an error; the
// handler logs it and acks the delivery without processing.
func parseCommentEvents(body []byte) ([]automation.CommentEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}

	var out []automation.CommentEvent
	for _, e := range env.Entry {
		for _, c := range e.Changes {
			if c.Field != "comments" {
				log.Debug().Str("field", c.Field).Msg("Ignoring non-comment webhook change")
				continue
			}

			var v commentValue
			if err := json.Unmarshal(c.Value, &v); err != nil {
				log.Warn().Err(err).Str("entryId", e.ID).Msg("Dropping malformed comment change")
				continue
			}
			if v.ID == "" || v.Media.ID == "" || v.From.ID == "" || v.Text == "" {
				log.Warn().
					Str("entryId", e.ID).
					Str("commentId", v.ID).
					Str("mediaId", v.Media.ID).
					Msg("Dropping incomplete comment change")
				continue
			}

			out = append(out, automation.CommentEvent{
				MediaID:      v.Media.ID,
				CommentID:    v.ID,
				Text:         v.Text,
				FromUserID:   v.From.ID,
				FromUsername: v.From.Username,
			})
		}
	}
	return out, nil
}
