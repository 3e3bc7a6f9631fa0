// Package worker consumes asynchronous screening jobs and publishes their
// results.
package worker

import (
	"context"
	"time"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// EventPublisher publishes an enveloped event; *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key, eventType string, payload interface{}) error
}

// MessageMetrics counts handled messages by outcome.
type MessageMetrics interface {
	ObserveMessage(topic, status string)
}

// LibraryScreener screens a reference against a stored library.
type LibraryScreener interface {
	Screen(ctx context.Context, name string, req *shapetypes.LibraryScreenRequest) (*shapetypes.ScreenResponse, error)
}

// ResultArchiver stores a full screening response out of band.
type ResultArchiver interface {
	Archive(ctx context.Context, jobID string, resp *shapetypes.ScreenResponse) (*shapetypes.ArchivedResult, error)
}

type noopMessageMetrics struct{}

func (noopMessageMetrics) ObserveMessage(string, string) {}

// ScreeningWorker turns screening requests into published results.
//
// Rejected requests produce a failed result and are committed.  Transient
// failures (timeouts, publish errors) are returned so the consumer retries
// and finally dead-letters the message.
type ScreeningWorker struct {
	svc         alignment.Service
	libraries   LibraryScreener
	archive     ResultArchiver
	inlineHits  int
	publisher   EventPublisher
	resultTopic string
	jobTimeout  time.Duration
	metrics     MessageMetrics
	logger      logging.Logger
	now         func() time.Time
}

// Option configures a ScreeningWorker.
type Option func(*ScreeningWorker)

// WithJobTimeout bounds each job; zero disables the limit.
func WithJobTimeout(d time.Duration) Option {
	return func(w *ScreeningWorker) { w.jobTimeout = d }
}

// WithMetrics records message outcomes.
func WithMetrics(m MessageMetrics) Option {
	return func(w *ScreeningWorker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithLibraries enables jobs that name a stored library.
func WithLibraries(l LibraryScreener) Option {
	return func(w *ScreeningWorker) { w.libraries = l }
}

// WithArchive stores every successful response with a and keeps at most
// inlineHits hits in the published event.
func WithArchive(a ResultArchiver, inlineHits int) Option {
	return func(w *ScreeningWorker) {
		w.archive = a
		w.inlineHits = inlineHits
	}
}

// NewScreeningWorker creates a worker publishing to resultTopic.
func NewScreeningWorker(svc alignment.Service, pub EventPublisher, resultTopic string, logger logging.Logger, opts ...Option) *ScreeningWorker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	w := &ScreeningWorker{
		svc:         svc,
		publisher:   pub,
		resultTopic: resultTopic,
		metrics:     noopMessageMetrics{},
		logger:      logger.Named("screening_worker"),
		now:         time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Handle is a kafka.Handler for the screening request topic.
func (w *ScreeningWorker) Handle(ctx context.Context, msg *kafka.Message) error {
	var job shapetypes.ScreeningJob
	env, err := kafka.DecodeEnvelope(msg.Value, &job)
	if err != nil {
		w.metrics.ObserveMessage(msg.Topic, "malformed")
		return err
	}
	if env.EventType != shapetypes.EventScreeningRequested {
		w.logger.Warn("ignoring unexpected event",
			logging.String("event_type", env.EventType),
			logging.String("event_id", env.EventID))
		w.metrics.ObserveMessage(msg.Topic, "skipped")
		return nil
	}
	if job.JobID == "" {
		job.JobID = env.EventID
	}
	log := w.logger.With(logging.String("job_id", job.JobID))
	if job.Library != "" {
		log = log.With(logging.String("library", job.Library))
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	result := shapetypes.ScreeningJobResult{JobID: job.JobID}
	resp, err := w.screen(jobCtx, &job)
	switch {
	case err == nil:
		result.Status = shapetypes.JobSucceeded
		result.Result = resp
		if w.archive != nil {
			if err := w.attachArchive(ctx, &result); err != nil {
				w.metrics.ObserveMessage(msg.Topic, "retry")
				log.Error("failed to archive screening result", logging.Err(err))
				return err
			}
		}
		log.Info("screening job finished",
			logging.Int("screened", resp.Screened),
			logging.Int("hits", len(resp.Hits)))
	case ctx.Err() != nil:
		w.metrics.ObserveMessage(msg.Topic, "aborted")
		return ctx.Err()
	case errors.IsClientError(errors.GetCode(err)) && !errors.IsCode(err, errors.ErrCodeCanceled):
		result.Status = shapetypes.JobFailed
		result.Error = err.Error()
		log.Warn("screening job rejected", logging.Err(err))
	default:
		w.metrics.ObserveMessage(msg.Topic, "retry")
		log.Error("screening job failed", logging.Err(err))
		return err
	}
	result.CompletedAt = w.now().UTC()

	if err := w.publisher.PublishEvent(ctx, w.resultTopic, job.JobID, shapetypes.EventScreeningCompleted, result); err != nil {
		w.metrics.ObserveMessage(msg.Topic, "retry")
		return errors.Wrap(err, errors.CodeUnknown, "failed to publish screening result")
	}
	w.metrics.ObserveMessage(msg.Topic, string(result.Status))
	return nil
}

func (w *ScreeningWorker) screen(ctx context.Context, job *shapetypes.ScreeningJob) (*shapetypes.ScreenResponse, error) {
	if job.Library == "" {
		return w.svc.Screen(ctx, &job.Request)
	}
	if w.libraries == nil {
		return nil, errors.InvalidParam("library screening is not enabled on this worker").WithDetail("library=" + job.Library)
	}
	if len(job.Request.Candidates) > 0 {
		return nil, errors.InvalidParam("a library job must not carry candidates").WithDetail("library=" + job.Library)
	}
	return w.libraries.Screen(ctx, job.Library, &shapetypes.LibraryScreenRequest{
		Reference: job.Request.Reference,
		TopN:      job.Request.TopN,
		MinScore:  job.Request.MinScore,
	})
}

func (w *ScreeningWorker) attachArchive(ctx context.Context, result *shapetypes.ScreeningJobResult) error {
	ref, err := w.archive.Archive(ctx, result.JobID, result.Result)
	if err != nil {
		return err
	}
	result.Archive = ref
	if len(result.Result.Hits) > w.inlineHits {
		trimmed := *result.Result
		trimmed.Hits = trimmed.Hits[:w.inlineHits]
		result.Result = &trimmed
		result.Truncated = true
	}
	return nil
}
