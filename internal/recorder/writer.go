package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

var (
	ErrQueueFull      = errors.New("recorder queue full")
	ErrClosed         = errors.New("recorder closed")
	ErrNotStarted     = errors.New("recorder not started")
	ErrAlreadyStarted = errors.New("recorder already started")
	ErrNilStore       = errors.New("recorder store is nil")
)

// Writer saves subscription events to a Store in batches from a buffered
// queue. A failed save is logged and counted; the writer keeps going.
type Writer struct {
	cfg   Config
	store Store
	ch    chan Record
	wg    sync.WaitGroup
	err   atomic.Value

	saved  atomic.Uint64
	failed atomic.Uint64

	started uint32

	// mu orders sends on ch against its close.
	mu     sync.RWMutex
	closed bool
}

// NewWriter creates a writer on store.
func NewWriter(store Store, cfg Config) (*Writer, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{
		cfg:   cfg,
		store: store,
		ch:    make(chan Record, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops the writer after saving the queued events.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()
	w.wg.Wait()
	return w.Err()
}

// Err returns the last save error, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Saved returns the number of records saved.
func (w *Writer) Saved() uint64 {
	return w.saved.Load()
}

// Failed returns the number of records lost to save errors.
func (w *Writer) Failed() uint64 {
	return w.failed.Load()
}

// TryAppend enqueues an event without blocking.
func (w *Writer) TryAppend(ev websocket.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}

	select {
	case w.ch <- NewRecord(ev):
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Writer) run(ctx context.Context) {
	var (
		batch       = make([]Record, 0, w.cfg.BatchSize)
		flushC      <-chan time.Time
		flushTicker *time.Ticker
	)
	if w.cfg.FlushInterval > 0 {
		flushTicker = time.NewTicker(w.cfg.FlushInterval)
		flushC = flushTicker.C
		defer flushTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			batch = w.drainNonBlocking(batch)
			w.save(batch)
			return
		case rec, ok := <-w.ch:
			if !ok {
				w.save(batch)
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchSize {
				w.save(batch)
				batch = batch[:0]
			}
		case <-flushC:
			w.save(batch)
			batch = batch[:0]
		}
	}
}

func (w *Writer) drainNonBlocking(batch []Record) []Record {
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				return batch
			}
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchSize {
				w.save(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (w *Writer) save(batch []Record) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SaveTimeout)
	defer cancel()

	if err := w.store.Save(ctx, batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		w.err.Store(err)
		logs.Errorf("recorder: save %d events, err: %+v", len(batch), err)
		return
	}
	w.saved.Add(uint64(len(batch)))
}
