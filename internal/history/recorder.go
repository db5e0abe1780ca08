package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/labpanel-core/internal/dialog"
	"github.com/nerrad567/labpanel-core/internal/infrastructure/influxdb"
)

// queueSize bounds the records waiting to be written.
const queueSize = 256

// writeTimeout bounds one SQLite insert.
const writeTimeout = 5 * time.Second

// Telemetry receives dialog transitions for time-series storage.
// *influxdb.Client satisfies it.
type Telemetry interface {
	WriteDialogEvent(e influxdb.DialogEvent)
}

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder turns registry changes into history records.
//
// Handle is called from registry listeners, which may run while a
// producer holds its lock, so it never blocks: records are queued and
// written by a background goroutine started with Start. When the queue is
// full the record is dropped with a warning.
type Recorder struct {
	repo      Repository
	telemetry Telemetry
	logger    Logger
	now       func() time.Time

	queue chan Record
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRecorder creates a recorder. telemetry and logger may be nil.
func NewRecorder(repo Repository, telemetry Telemetry, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:      repo,
		telemetry: telemetry,
		logger:    logger,
		now:       time.Now,
		queue:     make(chan Record, queueSize),
	}
}

// Start launches the writer goroutine. It returns when ctx is cancelled
// or Stop is called, after draining queued records.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop closes the queue and waits for pending records to be written.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

// Handle records one registry change. It is a dialog.Listener.
func (r *Recorder) Handle(c dialog.Change) {
	action, ok := actionFor(c.Op)
	if !ok {
		return
	}

	rec := Record{
		DialogID:  c.ID,
		Action:    action,
		Pending:   c.View.Pending,
		CreatedAt: r.now().UTC(),
	}
	if c.Entry != nil {
		rec.Kind = c.Entry.Payload.Kind
		rec.InstrumentID = c.Entry.Payload.InstrumentID
	}

	if r.telemetry != nil {
		r.telemetry.WriteDialogEvent(influxdb.DialogEvent{
			DialogID:     rec.DialogID,
			Kind:         rec.Kind,
			InstrumentID: rec.InstrumentID,
			Action:       string(rec.Action),
			Pending:      rec.Pending,
			Suppressed:   c.View.Suppressed,
			Time:         rec.CreatedAt,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("dialog history queue full, dropping record",
			"dialog_id", rec.DialogID,
			"action", string(rec.Action),
		)
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(ctx, rec)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

// drain writes whatever is queued once the run context is gone.
func (r *Recorder) drain() {
	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(context.Background(), rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.repo.Append(writeCtx, &rec); err != nil {
		r.logger.Error("writing dialog history failed",
			"dialog_id", rec.DialogID,
			"action", string(rec.Action),
			"error", err,
		)
	}
}

func actionFor(op dialog.Op) (Action, bool) {
	switch op {
	case dialog.OpInserted:
		return ActionOpened, true
	case dialog.OpReplaced:
		return ActionReplaced, true
	case dialog.OpRemoved:
		return ActionClosed, true
	default:
		return "", false
	}
}
