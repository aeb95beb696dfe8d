// Package unitofwork treats the guardian, dependent and activity collections
// as one logical dataset. It dispatches abstract documents and predicates to
// the repository of their concrete kind, checks foreign keys and paired
// activity transitions before writing, and cascades deletes down the
// ownership hierarchy.
package unitofwork

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cradle/internal/family/events"
	"cradle/internal/family/lock"
	"cradle/internal/family/metrics"
	"cradle/internal/family/models"
	"cradle/internal/family/store"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

const instrumentationName = "cradle/internal/family/unitofwork"

const defaultCascadeConcurrency = 4

// Transactor runs fn inside a transaction carried on the context it passes.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UnitOfWork struct {
	guardians  store.Repository[*models.Guardian]
	dependents store.Repository[*models.Dependent]
	activities store.Repository[*models.ActivityRecord]

	logger             *slog.Logger
	metrics            *metrics.Metrics
	publisher          events.Publisher
	locker             lock.Locker
	tx                 Transactor
	cascadeConcurrency int
	tracer             trace.Tracer
}

type Option func(*UnitOfWork)

func WithLogger(logger *slog.Logger) Option {
	return func(u *UnitOfWork) {
		u.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(u *UnitOfWork) {
		u.metrics = m
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(u *UnitOfWork) {
		u.publisher = p
	}
}

// WithLocker serializes paired activity inserts per dependent and kind.
// Without one, two concurrent inserts can observe the same predecessor.
func WithLocker(l lock.Locker) Option {
	return func(u *UnitOfWork) {
		u.locker = l
	}
}

// WithTransactor runs inserts and cascades inside a transaction. Cascade
// children then run one at a time on the transaction's connection.
func WithTransactor(t Transactor) Option {
	return func(u *UnitOfWork) {
		u.tx = t
	}
}

func WithCascadeConcurrency(n int) Option {
	return func(u *UnitOfWork) {
		if n > 0 {
			u.cascadeConcurrency = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(u *UnitOfWork) {
		u.tracer = t
	}
}

// New builds a UnitOfWork over one repository per kind.
func New(
	guardians store.Repository[*models.Guardian],
	dependents store.Repository[*models.Dependent],
	activities store.Repository[*models.ActivityRecord],
	opts ...Option,
) *UnitOfWork {
	u := &UnitOfWork{
		guardians:          guardians,
		dependents:         dependents,
		activities:         activities,
		cascadeConcurrency: defaultCascadeConcurrency,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if u.publisher == nil {
		u.publisher = events.NopPublisher{}
	}
	if u.tracer == nil {
		u.tracer = otel.Tracer(instrumentationName)
	}
	return u
}

// operation brackets one public call with a span, latency and error metrics.
type operation struct {
	u     *UnitOfWork
	name  string
	kind  models.Kind
	span  trace.Span
	start time.Time
}

func (u *UnitOfWork) begin(ctx context.Context, name string, kind models.Kind) (context.Context, *operation) {
	ctx, span := u.tracer.Start(ctx, "unitofwork."+name, trace.WithAttributes(
		attribute.String("cradle.operation", name),
		attribute.String("cradle.kind", string(kind)),
	))
	return ctx, &operation{u: u, name: name, kind: kind, span: span, start: time.Now()}
}

// end records err and closes the span. It returns err unchanged.
func (op *operation) end(err error) error {
	defer op.span.End()
	op.u.metrics.ObserveLatency(op.name, string(op.kind), time.Since(op.start))
	if err != nil {
		code := dErrors.CodeOf(err)
		op.u.metrics.IncrementError(op.name, string(code))
		op.span.RecordError(err, trace.WithAttributes(attribute.String("error.code", string(code))))
		op.span.SetStatus(codes.Error, err.Error())
		return err
	}
	op.span.SetStatus(codes.Ok, "")
	return nil
}

func (op *operation) affected(n int) {
	op.span.SetAttributes(attribute.Int("cradle.affected", n))
	op.u.metrics.AddAffected(op.name, string(op.kind), n)
}

// emit publishes best effort; failures are logged only.
func (u *UnitOfWork) emit(ctx context.Context, ev events.Event) {
	ev.RequestID = requestcontext.RequestID(ctx)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx)
	}
	if err := u.publisher.Publish(ctx, ev); err != nil {
		u.logger.WarnContext(ctx, "event publish failed",
			"event", string(ev.Type),
			"kind", string(ev.Kind),
			"document_id", ev.DocumentID,
			"error", err,
		)
	}
}

// inTx runs fn inside the configured transaction, or directly without one.
func (u *UnitOfWork) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.tx == nil {
		return fn(ctx)
	}
	return u.tx.RunInTx(ctx, fn)
}

// kindOf resolves the concrete kind of doc at the boundary.
func kindOf(doc models.Document) (models.Kind, error) {
	kind, ok := models.KindOf(doc)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnsupportedKind, "unsupported document type")
	}
	return kind, nil
}

func unsupportedKind(kind models.Kind) error {
	return dErrors.New(dErrors.CodeUnsupportedKind, "unsupported kind: "+string(kind))
}

// translate turns repository facts into coded errors. Errors that already
// carry a code pass through.
func translate(err error, kind models.Kind, what string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, string(kind)+" not found")
	case errors.Is(err, sentinel.ErrAmbiguous):
		return dErrors.New(dErrors.CodeAmbiguousMatch, "predicate matched more than one "+string(kind))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, string(kind)+" already exists")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, what)
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, what)
}
