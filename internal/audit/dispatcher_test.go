package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type blockingSink struct {
	gate   chan struct{}
	events chan Event
}

func (s *blockingSink) Emit(_ context.Context, event Event) {
	<-s.gate
	s.events <- event
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	var d *Dispatcher
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{}), events: make(chan Event, 8)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}

	deadline := time.Now().Add(time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if d.Dropped() == 0 {
		t.Fatal("expected events dropped under backpressure")
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "logout_session"})
	}
	d.Close()

	if got := len(sink.Events()); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := len(sink.Events()); got != 10 {
		t.Fatalf("expected emit after close to be ignored, got %d", got)
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "logout_all", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "refresh_failure", Error: "token_revoked"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != "refresh_failure" || ev.Error != "token_revoked" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestZapSinkLevelsBySuccess(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials", Metadata: map[string]string{"reason": "bad_password"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "login_success" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected failure at warn, got %v", entries[1].Level)
	}
	ctx := entries[1].ContextMap()
	if ctx["error_code"] != "invalid_credentials" || ctx["meta.reason"] != "bad_password" {
		t.Fatalf("unexpected fields %v", ctx)
	}
}

type panickySink struct{}

func (panickySink) Emit(_ context.Context, event Event) {
	if event.EventType == "boom" {
		panic("sink exploded")
	}
}

func TestDispatcherLogsSampledDrops(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &blockingSink{gate: make(chan struct{}), events: make(chan Event, 16)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zap.New(core)}, sink)

	// The first event may be picked up by the loop; keep emitting until the
	// buffer has shed five.
	deadline := time.Now().Add(time.Second)
	for d.Dropped() < 5 && time.Now().Before(deadline) {
		d.Emit(context.Background(), Event{EventType: "logout_all", UserID: "u1"})
	}
	if d.Dropped() < 5 {
		t.Fatalf("expected at least 5 drops, got %d", d.Dropped())
	}

	drops := logs.FilterMessage("audit event dropped").All()
	// Drops 1, 2, 4 are logged; 3 and 5 are not.
	if len(drops) != 3 {
		t.Fatalf("expected 3 sampled drop logs, got %d", len(drops))
	}
	last := drops[2].ContextMap()
	if last["dropped_total"] != uint64(4) || last["event_type"] != "logout_all" {
		t.Fatalf("unexpected drop fields %v", last)
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, Logger: zap.New(core)}, panickySink{})

	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "boom", UserID: "u1"})
	d.Emit(context.Background(), Event{EventType: "logout_session"})
	d.Close()

	stats := d.Stats()
	if stats.Delivered != 2 || stats.Failed != 1 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	entries := logs.FilterMessage("audit sink panicked").All()
	if len(entries) != 1 || entries[0].ContextMap()["event_type"] != "boom" {
		t.Fatalf("expected one panic log for boom, got %+v", entries)
	}
}

func TestDispatcherShutdownHonorsDeadline(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{}), events: make(chan Event, 4)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{EventType: "refresh_success"})
	d.Emit(context.Background(), Event{EventType: "refresh_success"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(sink.gate)
	d.Close()
	if got := d.Stats().Delivered; got != 2 {
		t.Fatalf("queued events must still be delivered, got %d", got)
	}
}

func TestDispatcherBlockingEmitCountsCanceledContext(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{}), events: make(chan Event, 4)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deadline := time.Now().Add(time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		d.Emit(ctx, Event{EventType: "logout_device"})
	}
	if d.Dropped() == 0 {
		t.Fatal("a canceled emit on a full buffer must count as dropped")
	}

	close(sink.gate)
	d.Close()
}
