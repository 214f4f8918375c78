package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJobMessageExtraRoundTrip(t *testing.T) {
	in := `{"jobId":"j1","avatarId":"demo","voiceUrl":"","enqueuedAt":"2026-03-01T12:00:00Z","voiceId":"en-US_Allison","meta":{"a":1}}`

	var msg JobMessage
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.JobID != "j1" || msg.AvatarID != "demo" || !msg.EnqueuedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("known fields not decoded: %+v", msg)
	}
	if len(msg.Extra) != 2 || string(msg.Extra["voiceId"]) != `"en-US_Allison"` {
		t.Fatalf("unexpected extra %v", msg.Extra)
	}

	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back JobMessage
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if string(back.Extra["meta"]) != `{"a":1}` {
		t.Errorf("expected meta to survive, got %s", out)
	}
}

func TestMergeExtraNeverShadowsKnownFields(t *testing.T) {
	p := JobPayload{AvatarID: "demo", Extra: Extra{
		"quality": json.RawMessage(`"ultra"`),
		"title":   json.RawMessage(`"Q3"`),
	}}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if back.Quality != "" {
		t.Errorf("extra quality leaked into the known field: %s", raw)
	}
	if string(back.Extra["title"]) != `"Q3"` {
		t.Errorf("expected title kept, got %s", raw)
	}
}

func TestMessageWithoutExtraHasNoExtraMembers(t *testing.T) {
	raw, err := json.Marshal(JobPayload{AvatarID: "demo"}.Message("j1", time.Unix(0, 0)))
	if err != nil {
		t.Fatal(err)
	}
	var wire map[string]json.RawMessage
	_ = json.Unmarshal(raw, &wire)
	if _, ok := wire["Extra"]; ok {
		t.Errorf("Extra must not be serialized as a member: %s", raw)
	}
}
