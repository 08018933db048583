// Package consumer runs the per-pair consumption loops that feed the
// correlation engine.
package consumer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_messages_processed_total",
		Help: "The total number of messages fetched and processed per topic",
	}, []string{"topic"})
	processingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_processing_failures_total",
		Help: "The total number of messages whose processing step failed",
	}, []string{"topic"})
	extractionMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_key_extraction_misses_total",
		Help: "Messages where the key of interest was absent or the payload unparseable",
	}, []string{"topic"})
	correlationMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_correlation_matches_total",
		Help: "The total number of correlated-topic messages that matched a stored event",
	})
)

// Source is the slice of a Kafka reader the loops depend on.
type Source interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SourceFactory opens a Source for one (topic, consumer group) binding.
type SourceFactory func(topic, groupID string) Source

// Orchestrator owns two loops per configured pair: one consuming the primary
// topic, one consuming the correlated topic under the "-correlated" group.
// It is the single place loops are created and the single place they are
// released.
type Orchestrator struct {
	pairs        []config.TopicPair
	save         *usecase.SaveEvent
	correlate    *usecase.CorrelateEvent
	ackOnFailure bool

	loops  []*loop
	wg     sync.WaitGroup
	active atomic.Int64
}

func NewOrchestrator(
	pairs []config.TopicPair,
	save *usecase.SaveEvent,
	correlate *usecase.CorrelateEvent,
	ackOnFailure bool,
	newSource SourceFactory,
) *Orchestrator {
	o := &Orchestrator{
		pairs:        pairs,
		save:         save,
		correlate:    correlate,
		ackOnFailure: ackOnFailure,
	}

	for _, pair := range pairs {
		o.loops = append(o.loops,
			newLoop(o, pair, rolePrimary, newSource(pair.Name, pair.ConsumerGroup)),
			newLoop(o, pair, roleCorrelated, newSource(pair.CorrelatedTopic, pair.CorrelatedConsumerGroup())),
		)
	}

	return o
}

// Start launches every loop. Each loop goroutine owns its Source and closes
// it on every exit path, so cancelling ctx and calling Wait releases all
// underlying consumers.
func (o *Orchestrator) Start(ctx context.Context) {
	for _, l := range o.loops {
		o.wg.Add(1)
		o.active.Add(1)
		go func(l *loop) {
			defer o.wg.Done()
			defer o.active.Add(-1)
			defer l.source.Close()
			l.run(ctx)
		}(l)
	}
}

// Wait blocks until every loop has stopped and released its consumer.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) Pairs() []config.TopicPair {
	return o.pairs
}

// ActiveLoops reports how many consumption loops are currently running.
func (o *Orchestrator) ActiveLoops() int64 {
	return o.active.Load()
}
