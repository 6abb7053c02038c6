package webhook

import "testing"

func TestParseCommentEvents_Batch(t *testing.T) {
	body := `{
		"object": "instagram",
		"entry": [
			{"id": "ig-1", "changes": [
				{"field": "comments", "value": {"id": "c-1", "text": "preco?", "from": {"id": "u-1", "username": "ana"}, "media": {"id": "m-1"}}},
				{"field": "mentions", "value": {"id": "x-1"}}
			]},
			{"id": "ig-2", "changes": [
				{"field": "comments", "value": {"id": "c-2", "text": "link pls", "from": {"id": "u-2", "username": "bo"}, "media": {"id": "m-2"}}}
			]}
		]
	}`

	evs, err := parseCommentEvents([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].CommentID != "c-1" || evs[0].MediaID != "m-1" || evs[0].FromUsername != "ana" {
		t.Errorf("unexpected first event: %+v", evs[0])
	}
	if evs[1].CommentID != "c-2" || evs[1].MediaID != "m-2" {
		t.Errorf("unexpected second event: %+v", evs[1])
	}
}

func TestParseCommentEvents_IncompleteChangeDropped(t *testing.T) {
	// First change lacks a media ID; the sibling must survive.
	body := `{
		"object": "instagram",
		"entry": [{"id": "ig-1", "changes": [
			{"field": "comments", "value": {"id": "c-1", "text": "hi", "from": {"id": "u-1"}}},
			{"field": "comments", "value": {"id": "c-2", "text": "yo", "from": {"id": "u-2", "username": "bo"}, "media": {"id": "m-2"}}}
		]}]
	}`

	evs, err := parseCommentEvents([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].CommentID != "c-2" {
		t.Errorf("expected surviving sibling c-2, got %s", evs[0].CommentID)
	}
}

func TestParseCommentEvents_MalformedValueDropped(t *testing.T) {
	body := `{
		"object": "instagram",
		"entry": [{"id": "ig-1", "changes": [
			{"field": "comments", "value": "not-an-object"},
			{"field": "comments", "value": {"id": "c-2", "text": "yo", "from": {"id": "u-2"}, "media": {"id": "m-2"}}}
		]}]
	}`

	evs, err := parseCommentEvents([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evs) != 1 || evs[0].CommentID != "c-2" {
		t.Fatalf("expected only c-2 to survive, got %+v", evs)
	}
}

func TestParseCommentEvents_InvalidJSON(t *testing.T) {
	if _, err := parseCommentEvents([]byte(`{"entry": [`)); err == nil {
		t.Error("expected error for invalid JSON body")
	}
}

func TestParseCommentEvents_EmptyEntry(t *testing.T) {
	evs, err := parseCommentEvents([]byte(`{"object":"instagram","entry":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("expected no events, got %d", len(evs))
	}
}
