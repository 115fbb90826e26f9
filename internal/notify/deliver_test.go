package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"shopwatch/internal/retry"
	"shopwatch/internal/transport"
	logx "shopwatch/pkg/logx"
)

type sentMsg struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	sent  []sentMsg
	fail  func(call int) error
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		if err := f.fail(f.calls); err != nil {
			return transport.MessageRef{}, err
		}
	}
	f.sent = append(f.sent, sentMsg{chatID: to.ChatID, text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func testDeliverer(t *testing.T, s *fakeSender, attempts int) *Deliverer {
	t.Helper()
	d, err := NewDeliverer(s, DeliverConfig{
		Digest:      transport.ChatTarget{ChatID: 100},
		Responsible: transport.ChatTarget{ChatID: 200},
		MessageRate: 10000,
		Retry:       retry.Policy{Attempts: attempts, Delay: time.Millisecond},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewDeliverer: %v", err)
	}
	return d
}

func TestDeliverOrderAndEscalation(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	d := testDeliverer(t, s, 1)

	dg := &Digest{
		Chunks:   [][]Block{{"a", "b"}, {"c"}},
		Escalate: true,
		Alert:    "review needed",
	}
	if err := d.Deliver(context.Background(), dg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	want := []sentMsg{
		{chatID: 100, text: "a\n\nb"},
		{chatID: 100, text: "c"},
		{chatID: 200, text: "review needed"},
	}
	if len(s.sent) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(s.sent), len(want))
	}
	for i := range want {
		if s.sent[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, s.sent[i], want[i])
		}
	}
}

func TestDeliverChunkFailureAbortsRest(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("telegram: 502")
	s := &fakeSender{fail: func(call int) error {
		if call >= 2 {
			return sendErr
		}
		return nil
	}}
	d := testDeliverer(t, s, 2)

	dg := &Digest{
		Chunks:   [][]Block{{"a"}, {"b"}, {"c"}},
		Escalate: true,
		Alert:    "review needed",
	}
	err := d.Deliver(context.Background(), dg)
	if !errors.Is(err, sendErr) {
		t.Fatalf("err = %v, want wrapped send error", err)
	}
	if !strings.Contains(err.Error(), "chunk 2/3") {
		t.Fatalf("err = %v, want chunk position", err)
	}
	// First chunk delivered, second exhausted its two attempts, then nothing.
	if s.calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 ok + 2 failed attempts)", s.calls)
	}
	if len(s.sent) != 1 || s.sent[0].text != "a" {
		t.Fatalf("sent = %+v, want only first chunk", s.sent)
	}
}

func TestDeliverRetriesTransientSendFailure(t *testing.T) {
	t.Parallel()

	s := &fakeSender{fail: func(call int) error {
		if call == 1 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}}
	d := testDeliverer(t, s, 3)

	dg := &Digest{Chunks: [][]Block{{"a"}}}
	if err := d.Deliver(context.Background(), dg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if s.calls != 2 {
		t.Fatalf("calls = %d, want 2", s.calls)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %+v, want one message", s.sent)
	}
}

func TestDeliverNoEscalationSend(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	d := testDeliverer(t, s, 1)

	dg := &Digest{Chunks: [][]Block{{"a"}}, Escalate: false}
	if err := d.Deliver(context.Background(), dg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0].chatID != 100 {
		t.Fatalf("sent = %+v, want one digest message", s.sent)
	}
}

func TestDeliverEscalationWithoutResponsibleGroup(t *testing.T) {
	t.Parallel()

	s := &fakeSender{}
	d, err := NewDeliverer(s, DeliverConfig{
		Digest:      transport.ChatTarget{ChatID: 100},
		MessageRate: 10000,
		Retry:       retry.Policy{Attempts: 1, Delay: time.Millisecond},
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewDeliverer: %v", err)
	}

	dg := &Digest{Chunks: [][]Block{{"a"}}, Escalate: true, Alert: "review needed"}
	if err := d.Deliver(context.Background(), dg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %+v, want chunk only (alert dropped)", s.sent)
	}
}

func TestNewDelivererValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewDeliverer(nil, DeliverConfig{Digest: transport.ChatTarget{ChatID: 1}}, logx.Nop()); err == nil {
		t.Error("nil sender accepted")
	}
	if _, err := NewDeliverer(&fakeSender{}, DeliverConfig{}, logx.Nop()); err == nil {
		t.Error("zero digest target accepted")
	}
}
