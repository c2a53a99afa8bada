package bridge

import (
	"strings"
	"testing"
	"time"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{
		Type:     MessageTypeCall,
		CallID:   7,
		Op:       OpCreate,
		ParentID: "folder-1",
		Title:    "Go",
		URL:      "https://go.dev",
	}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if got.Type != MessageTypeCall || got.CallID != 7 || got.Op != OpCreate {
		t.Errorf("decoded frame = %+v", got)
	}
	if got.ParentID != "folder-1" || got.URL != "https://go.dev" {
		t.Errorf("decoded payload = %+v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Error("decoding garbage succeeded")
	}
}

func TestEventConversion(t *testing.T) {
	msg := &Message{
		Type:        MessageTypeEvent,
		Kind:        "moved",
		NativeID:    "n1",
		ParentID:    "p2",
		OldParentID: "p1",
		TimestampMS: 1700000000000,
	}

	ev := msg.Event()
	if ev.Kind != nativetree.EventMoved || ev.NativeID != "n1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ParentID != "p2" || ev.OldParentID != "p1" {
		t.Errorf("event parents = %+v", ev)
	}
	if want := time.UnixMilli(1700000000000).UTC(); !ev.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestEventConversionZeroTimestamp(t *testing.T) {
	msg := &Message{Type: MessageTypeEvent, Kind: "changed", NativeID: "n1"}
	if ev := msg.Event(); !ev.Timestamp.IsZero() {
		t.Errorf("unreported timestamp decoded as %v, want zero", ev.Timestamp)
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	msg := &Message{Type: MessageTypeHello}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// The hello frame stays minimal on the wire.
	if s := string(data); strings.Contains(s, "call_id") || strings.Contains(s, "native_id") {
		t.Errorf("hello frame carries empty fields: %s", s)
	}
}
