package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/extractor"

	"github.com/segmentio/kafka-go"
)

type role int

const (
	rolePrimary role = iota
	roleCorrelated
)

func (r role) String() string {
	if r == roleCorrelated {
		return "correlated"
	}
	return "primary"
}

// loop is one consumption loop, constructed already knowing which side of
// its pair it serves. No per-message topic matching is needed.
type loop struct {
	orch   *Orchestrator
	pair   config.TopicPair
	role   role
	topic  string
	group  string
	source Source
}

func newLoop(orch *Orchestrator, pair config.TopicPair, r role, source Source) *loop {
	topic, group := pair.Name, pair.ConsumerGroup
	if r == roleCorrelated {
		topic, group = pair.CorrelatedTopic, pair.CorrelatedConsumerGroup()
	}
	return &loop{
		orch:   orch,
		pair:   pair,
		role:   r,
		topic:  topic,
		group:  group,
		source: source,
	}
}

func (l *loop) run(ctx context.Context) {
	slog.Info("consumption loop started",
		"topic", l.topic, "group", l.group, "role", l.role.String())

	for {
		msg, err := l.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("consumption loop stopping", "topic", l.topic, "group", l.group)
				return
			}
			slog.Error("failed to fetch message", "topic", l.topic, "group", l.group, "error", err)
			time.Sleep(1 * time.Second)
			continue
		}

		messagesProcessed.WithLabelValues(l.topic).Inc()
		slog.Debug("message received",
			"group", l.group, "topic", msg.Topic, "partition", msg.Partition,
			"offset", msg.Offset, "key", string(msg.Key))

		if err := l.process(ctx, msg); err != nil {
			processingFailures.WithLabelValues(l.topic).Inc()
			slog.Error("message processing failed",
				"topic", l.topic, "group", l.group, "offset", msg.Offset,
				"key", l.keyName(), "error", err)
			if !l.orch.ackOnFailure {
				if !l.reprocess(ctx, msg) {
					return
				}
			}
		}

		l.commit(ctx, msg)
	}
}

// process handles one message. Parse failures and absent fields are logged
// terminal outcomes, not errors; only storage failures propagate.
func (l *loop) process(ctx context.Context, msg kafka.Message) error {
	keyName := l.keyName()
	if keyName == "" {
		return nil
	}

	value, outcome := extractor.Extract(msg.Value, keyName)
	switch outcome {
	case extractor.Unparseable:
		extractionMisses.WithLabelValues(l.topic).Inc()
		slog.Warn("message payload is not valid JSON",
			"topic", l.topic, "group", l.group, "offset", msg.Offset)
		return nil
	case extractor.FieldMissing:
		extractionMisses.WithLabelValues(l.topic).Inc()
		slog.Warn("key of interest not found in message",
			"topic", l.topic, "group", l.group, "key", keyName)
		return nil
	}

	if l.role == rolePrimary {
		_, err := l.orch.save.Execute(ctx, l.pair.Name, keyName, value)
		return err
	}

	// The matcher always searches by the primary side's key name, whatever
	// field the value was read from on this side.
	matched, err := l.orch.correlate.Execute(ctx, l.pair.KeyOfInterest, value, string(msg.Value))
	if err != nil {
		return err
	}
	if matched != nil {
		correlationMatches.Inc()
	}
	return nil
}

// failureRetryBackoff paces reprocessing attempts when ack_on_failure is off.
const failureRetryBackoff = time.Second

// reprocess retries msg until it succeeds or ctx is cancelled. Nothing newer
// is fetched in the meantime, so a later commit can never advance the group
// offset past an unprocessed message. Returns false when the context ended
// before the message went through.
func (l *loop) reprocess(ctx context.Context, msg kafka.Message) bool {
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumption loop stopping mid-retry",
				"topic", l.topic, "group", l.group, "offset", msg.Offset)
			return false
		case <-time.After(failureRetryBackoff):
		}

		if err := l.process(ctx, msg); err != nil {
			processingFailures.WithLabelValues(l.topic).Inc()
			slog.Error("message reprocessing failed",
				"topic", l.topic, "group", l.group, "offset", msg.Offset, "error", err)
			continue
		}
		return true
	}
}

// commit acknowledges the message. It runs detached from the loop context so
// shutdown never interrupts an in-flight acknowledgment.
func (l *loop) commit(ctx context.Context, msg kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := l.source.CommitMessages(commitCtx, msg); err != nil {
		slog.Error("failed to commit message",
			"topic", l.topic, "group", l.group, "offset", msg.Offset, "error", err)
	}
}

func (l *loop) keyName() string {
	if l.role == roleCorrelated {
		return l.pair.CorrelatedKeyOfInterest
	}
	return l.pair.KeyOfInterest
}
