package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeSender struct {
	name  string
	err   error
	sent  int
	title string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.sent++
	f.title = title
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierEventFilter(t *testing.T) {
	tests := []struct {
		name     string
		events   []string
		event    string
		wantSent int
	}{
		{name: "listed event delivered", events: []string{EventSpreadAlert}, event: EventSpreadAlert, wantSent: 1},
		{name: "unlisted event dropped", events: []string{EventSpreadAlert}, event: EventConsumerLag, wantSent: 0},
		{name: "empty filter passes everything", events: nil, event: EventConsumerLag, wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSender{name: "telegram"}
			n := NewNotifier([]Sender{s}, tt.events, testLogger())

			if err := n.Notify(context.Background(), tt.event, "title", "body"); err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if s.sent != tt.wantSent {
				t.Fatalf("sent = %d, want %d", s.sent, tt.wantSent)
			}
		})
	}
}

func TestNotifierPartialFailure(t *testing.T) {
	broken := &fakeSender{name: "telegram", err: errors.New("bot token revoked")}
	healthy := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), EventSpreadAlert, "Spread alert", "body")
	if err == nil {
		t.Fatal("expected an error from the broken sender")
	}
	if !strings.Contains(err.Error(), "telegram") {
		t.Fatalf("error does not name the failing channel: %v", err)
	}
	if healthy.sent != 1 {
		t.Fatalf("healthy sender sent = %d, want 1", healthy.sent)
	}
}
