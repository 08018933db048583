package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event/mocks"
	"github.com/leandrocl/kafka-correlation-monitor/internal/usecase"

	"github.com/segmentio/kafka-go"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Run()
}

// fakeSource hands out scripted messages, then blocks until the context is
// cancelled, like a reader waiting on an idle partition.
type fakeSource struct {
	topic string
	msgs  chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newFakeSource(topic string, payloads ...string) *fakeSource {
	s := &fakeSource{
		topic: topic,
		msgs:  make(chan kafka.Message, len(payloads)),
	}
	for i, p := range payloads {
		s.msgs <- kafka.Message{Topic: topic, Offset: int64(i), Value: []byte(p)}
	}
	return s
}

func (s *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-s.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (s *fakeSource) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = append(s.committed, msgs...)
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) committedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.committed)
}

func (s *fakeSource) committedOffsets() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, m := range s.committed {
		out = append(out, m.Offset)
	}
	return out
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testPair() config.TopicPair {
	return config.TopicPair{
		Name:                    "orders",
		CorrelatedTopic:         "orders-correlated",
		ConsumerGroup:           "orders-group",
		KeyOfInterest:           "orderId",
		CorrelatedKeyOfInterest: "correlationId",
	}
}

// buildOrchestrator wires an orchestrator over fake sources keyed by topic.
func buildOrchestrator(repo *mocks.EventRepository, pair config.TopicPair, ackOnFailure bool, sources map[string]*fakeSource) *Orchestrator {
	save := usecase.NewSaveEvent(repo)
	correlate := usecase.NewCorrelateEvent(repo)
	return NewOrchestrator([]config.TopicPair{pair}, save, correlate, ackOnFailure, func(topic, groupID string) Source {
		return sources[topic]
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOrchestratorEndToEnd(t *testing.T) {
	repo := &mocks.EventRepository{}
	pair := testPair()
	primary := newFakeSource(pair.Name, `{"orderId":"o1"}`)
	correlated := newFakeSource(pair.CorrelatedTopic)
	sources := map[string]*fakeSource{pair.Name: primary, pair.CorrelatedTopic: correlated}

	orch := buildOrchestrator(repo, pair, true, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	if got := orch.ActiveLoops(); got != 2 {
		t.Errorf("expected 2 active loops, got %d", got)
	}

	// Primary sighting lands as exactly one unmatched row.
	waitFor(t, func() bool {
		n, _ := repo.CountAll(context.Background())
		return n == 1
	})
	rows := repo.Snapshot()
	if rows[0].TopicName != "orders" || rows[0].KeyOfInterestName != "orderId" || rows[0].KeyOfInterestValue != "o1" {
		t.Errorf("unexpected row: %+v", rows[0])
	}
	if rows[0].IsCorrelated {
		t.Error("row must start unmatched")
	}

	// The matcher searches by the primary key name, with the value read
	// from the correlated side's field.
	correlatedPayload := `{"correlationId":"o1"}`
	correlated.msgs <- kafka.Message{Topic: pair.CorrelatedTopic, Value: []byte(correlatedPayload)}

	waitFor(t, func() bool {
		n, _ := repo.CountMatched(context.Background())
		return n == 1
	})
	rows = repo.Snapshot()
	if rows[0].CorrelatedMessage == nil || *rows[0].CorrelatedMessage != correlatedPayload {
		t.Errorf("expected correlated message %q, got %+v", correlatedPayload, rows[0])
	}
	if rows[0].CorrelationTimestamp == nil {
		t.Error("correlation timestamp must be set")
	}

	waitFor(t, func() bool { return primary.committedCount() == 1 && correlated.committedCount() == 1 })

	cancel()
	orch.Wait()

	if orch.ActiveLoops() != 0 {
		t.Errorf("expected 0 active loops after shutdown, got %d", orch.ActiveLoops())
	}
	if !primary.isClosed() || !correlated.isClosed() {
		t.Error("shutdown must release every consumer")
	}
}

func TestOrchestratorAbsentFieldCreatesNoRow(t *testing.T) {
	repo := &mocks.EventRepository{}
	pair := testPair()
	primary := newFakeSource(pair.Name, `{"other":"x"}`, `not-json`)
	correlated := newFakeSource(pair.CorrelatedTopic)
	sources := map[string]*fakeSource{pair.Name: primary, pair.CorrelatedTopic: correlated}

	orch := buildOrchestrator(repo, pair, true, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	// Both malformed messages are acknowledged without creating rows.
	waitFor(t, func() bool { return primary.committedCount() == 2 })
	if n, _ := repo.CountAll(context.Background()); n != 0 {
		t.Errorf("expected no rows, got %d", n)
	}

	cancel()
	orch.Wait()
}

func TestOrchestratorAcksFailedProcessing(t *testing.T) {
	repo := &mocks.EventRepository{SaveErr: errors.New("store unavailable")}
	pair := testPair()
	primary := newFakeSource(pair.Name, `{"orderId":"o1"}`)
	correlated := newFakeSource(pair.CorrelatedTopic)
	sources := map[string]*fakeSource{pair.Name: primary, pair.CorrelatedTopic: correlated}

	orch := buildOrchestrator(repo, pair, true, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	// Storage failed, processing was logged and swallowed, message still committed.
	waitFor(t, func() bool { return primary.committedCount() == 1 })

	cancel()
	orch.Wait()
}

func TestOrchestratorHoldsAckWhenConfigured(t *testing.T) {
	repo := &mocks.EventRepository{SaveErr: errors.New("store unavailable")}
	pair := testPair()
	primary := newFakeSource(pair.Name, `{"orderId":"o1"}`)
	correlated := newFakeSource(pair.CorrelatedTopic)
	sources := map[string]*fakeSource{pair.Name: primary, pair.CorrelatedTopic: correlated}

	orch := buildOrchestrator(repo, pair, false, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	waitFor(t, func() bool { return repo.SaveCallCount() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if primary.committedCount() != 0 {
		t.Error("failed message must stay uncommitted when ack_on_failure is off")
	}

	cancel()
	orch.Wait()
}

func TestOrchestratorRetriesFailedMessageBeforeAdvancing(t *testing.T) {
	repo := &mocks.EventRepository{SaveErr: errors.New("store unavailable")}
	pair := testPair()
	primary := newFakeSource(pair.Name, `{"orderId":"o1"}`, `{"orderId":"o2"}`)
	correlated := newFakeSource(pair.CorrelatedTopic)
	sources := map[string]*fakeSource{pair.Name: primary, pair.CorrelatedTopic: correlated}

	orch := buildOrchestrator(repo, pair, false, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	// The first message keeps failing: nothing is committed and the second
	// message is not consumed past it.
	waitFor(t, func() bool { return repo.SaveCallCount() >= 1 })
	if primary.committedCount() != 0 {
		t.Fatal("failed message must stay uncommitted")
	}
	if n, _ := repo.CountAll(context.Background()); n != 0 {
		t.Fatalf("expected no rows while the first message fails, got %d", n)
	}

	// Once the store recovers, the failed message goes through first and
	// both offsets are committed in order.
	repo.SetSaveErr(nil)
	waitFor(t, func() bool { return primary.committedCount() == 2 })

	if n, _ := repo.CountAll(context.Background()); n != 2 {
		t.Fatalf("expected both sightings stored, got %d", n)
	}
	offsets := primary.committedOffsets()
	if offsets[0] != 0 || offsets[1] != 1 {
		t.Fatalf("expected offsets committed in order [0 1], got %v", offsets)
	}

	cancel()
	orch.Wait()
}

func TestOrchestratorNoMatchIsNormal(t *testing.T) {
	repo := &mocks.EventRepository{}
	pair := testPair()
	primary := newFakeSource(pair.Name)
	correlated := newFakeSource(pair.CorrelatedTopic, `{"correlationId":"never-seen"}`)
	sources := map[string]*fakeSource{pair.Name: primary, pair.CorrelatedTopic: correlated}

	orch := buildOrchestrator(repo, pair, true, sources)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	waitFor(t, func() bool { return correlated.committedCount() == 1 })
	if n, _ := repo.CountAll(context.Background()); n != 0 {
		t.Errorf("no-match correlation must not create rows, got %d", n)
	}

	cancel()
	orch.Wait()
}
