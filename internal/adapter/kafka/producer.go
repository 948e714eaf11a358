package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
	"github.com/niksmo/smart-catalog/pkg/retry"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

var _ port.SearchEventsProducer = (*SearchEventsProducer)(nil)

const produceAttempts = 3

// A SearchEventsProducer publishes one record per smart search, keyed by
// the lower-cased query.
type SearchEventsProducer struct {
	opPrefix string
	cl       ProducerClient
	encoder  Encoder
	policy   retry.Policy
}

func NewSearchEventsProducer(
	opts ...ProducerOpt,
) (*SearchEventsProducer, error) {
	const op = "NewSearchEventsProducer"

	if len(opts) != 2 {
		panic(opErr(ErrTooFewOpts, op)) // develop mistake
	}

	var options producerOpts
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, opErr(err, op)
		}
	}

	return &SearchEventsProducer{
		opPrefix: "SearchEventsProducer",
		cl:       options.cl,
		encoder:  options.encoder,
		policy: retry.Policy{
			MaxAttempts: produceAttempts,
			Backoff:     retry.ExponentialBackoff(50 * time.Millisecond),
			ShouldRetry: isRetriable,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				slog.Warn("retrying search event",
					"op", "SearchEventsProducer.ProduceSearchEvent",
					"attempt", attempt, "wait", wait, "err", err)
			},
		},
	}, nil
}

func (p *SearchEventsProducer) ProduceSearchEvent(
	ctx context.Context, v domain.SearchEvent,
) error {
	const op = "ProduceSearchEvent"

	if err := ctx.Err(); err != nil {
		return opErr(err, p.opPrefix, op)
	}

	r, err := p.createRecord(v)
	if err != nil {
		return opErr(err, p.opPrefix, op)
	}

	err = retry.Do(ctx, p.policy, func() error {
		return p.cl.ProduceSync(ctx, r).FirstErr()
	})
	if err != nil {
		return opErr(err, p.opPrefix, op)
	}
	return nil
}

func (p *SearchEventsProducer) Close() {
	const op = "Close"
	log := slog.With("op", makeOp(p.opPrefix, op))
	log.Info("closing producer...")
	p.cl.Close()
	log.Info("producer is closed")
}

func (p *SearchEventsProducer) createRecord(
	v domain.SearchEvent,
) (*kgo.Record, error) {
	const op = "createRecord"

	s := searchEventToSchemaV1(v)
	b, err := p.encoder.Encode(s)
	if err != nil {
		return nil, opErr(err, p.opPrefix, op)
	}
	return &kgo.Record{Key: []byte(normalizeKey(s.Query)), Value: b}, nil
}

func isRetriable(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return kerr.IsRetriable(err)
}
