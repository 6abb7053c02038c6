package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRecorder_Flush(t *testing.T) {
	var buf bytes.Buffer
	New("ReplyFlow/Test").
		SetOutput(&buf).
		Dimension("Stage", "webhook").
		Metric("CommentEvents", 3, UnitCount).
		Duration("ProcessingTime", 250*time.Millisecond).
		Property("mediaId", "m-1").
		Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("flush output is not valid JSON: %v", err)
	}

	if doc["Stage"] != "webhook" {
		t.Errorf("Stage = %v, want webhook", doc["Stage"])
	}
	if doc["CommentEvents"] != float64(3) {
		t.Errorf("CommentEvents = %v, want 3", doc["CommentEvents"])
	}
	if doc["ProcessingTime"] != float64(250) {
		t.Errorf("ProcessingTime = %v, want 250", doc["ProcessingTime"])
	}
	if doc["mediaId"] != "m-1" {
		t.Errorf("mediaId = %v, want m-1", doc["mediaId"])
	}
	if _, ok := doc["_aws"]; !ok {
		t.Error("missing _aws directive")
	}
}

func TestRecorder_CountAccumulates(t *testing.T) {
	var buf bytes.Buffer
	New("ReplyFlow/Test").
		SetOutput(&buf).
		Count("Outcome_sent").
		Count("Outcome_sent").
		Count("Outcome_sent").
		Flush()

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["Outcome_sent"] != float64(3) {
		t.Errorf("Outcome_sent = %v, want 3", doc["Outcome_sent"])
	}
}

func TestRecorder_EmptyFlushEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	New("ReplyFlow/Test").SetOutput(&buf).Property("only", "props").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
