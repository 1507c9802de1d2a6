// Package executor runs state-changing operations with exclusive access to
// the accounts they touch. Each operation either commits all of its writes
// and events or none of them.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	coreerrors "sktvault/core/errors"
	"sktvault/core/events"
	"sktvault/core/state"
	"sktvault/observability/metrics"
	"sktvault/storage"
)

// ErrClosed is returned once the executor has been closed.
var ErrClosed = errors.New("executor: closed")

const instrumentation = "sktvault/core/executor"

// Func mutates state through m and raises events on emit. Returning an error
// discards both.
type Func func(m *state.Manager, emit events.Emitter) error

// Executor serialises operations per lock key and commits them atomically.
type Executor struct {
	db      storage.Database
	locks   *lockSet
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.CustodyMetrics
	tracer  trace.Tracer
	ops     metric.Int64Counter

	closed chan struct{}
}

// New creates an executor over db. Committed events go to emitter.
func New(db storage.Database, emitter events.Emitter) *Executor {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	ops, err := otel.Meter(instrumentation).Int64Counter("sktvault.executor.operations",
		metric.WithDescription("Executed operations by name and outcome."))
	if err != nil {
		ops = nil
	}
	return &Executor{
		db:      db,
		locks:   newLockSet(),
		emitter: emitter,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer(instrumentation),
		ops:     ops,
		closed:  make(chan struct{}),
	}
}

// SetLogger overrides the executor logger.
func (x *Executor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	x.logger = logger
}

// SetMetrics enables prometheus instrumentation.
func (x *Executor) SetMetrics(m *metrics.CustodyMetrics) { x.metrics = m }

// Close rejects further operations. In-flight operations finish normally.
func (x *Executor) Close() {
	select {
	case <-x.closed:
	default:
		close(x.closed)
	}
}

// Execute acquires the locks for keys, runs fn against a fresh state view and
// commits the result. ctx only bounds the wait for locks; once fn starts the
// operation runs to completion.
func (x *Executor) Execute(ctx context.Context, op string, keys []string, fn Func) (err error) {
	if fn == nil {
		return fmt.Errorf("executor: nil operation %q", op)
	}
	select {
	case <-x.closed:
		return ErrClosed
	default:
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := x.tracer.Start(ctx, "executor."+op, trace.WithAttributes(
		attribute.String("sktvault.op", op),
		attribute.Int("sktvault.lock_keys", len(keys)),
	))
	defer span.End()

	waitStart := time.Now()
	release, err := x.locks.acquire(ctx, keys)
	x.metrics.ObserveLockWait(op, time.Since(waitStart))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock wait aborted")
		return err
	}
	defer release()

	x.metrics.Inflight(1)
	defer x.metrics.Inflight(-1)

	start := time.Now()
	defer func() {
		x.observe(ctx, op, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	m := state.NewManager(x.db)
	buf := &events.Buffer{}
	if err = fn(m, buf); err != nil {
		m.Discard()
		buf.Reset()
		x.logger.Debug("operation rejected", "op", op, "error", err, "code", coreerrors.CodeOf(err).String())
		return err
	}
	if err = m.Commit(); err != nil {
		buf.Reset()
		x.logger.Error("commit failed", "op", op, "error", err)
		return err
	}
	span.SetAttributes(attribute.Int("sktvault.events", len(buf.Events())))
	buf.Flush(x.emitter)
	return nil
}

// View runs fn against a read-only snapshot of committed state. Writes made
// by fn are dropped.
func (x *Executor) View(fn func(m *state.Manager) error) error {
	if fn == nil {
		return nil
	}
	m := state.NewManager(x.db)
	defer m.Discard()
	return fn(m)
}

func (x *Executor) observe(ctx context.Context, op string, err error, d time.Duration) {
	code := ""
	if err != nil {
		code = strconv.FormatUint(uint64(coreerrors.CodeOf(err)), 10)
	}
	x.metrics.ObserveOperation(op, code, d)
	if x.ops != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		x.ops.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("result", result),
		))
	}
}
