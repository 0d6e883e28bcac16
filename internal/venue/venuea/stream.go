package venuea

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/netutil"
	"github.com/sawpanic/spotwatch/internal/obs"
	"github.com/sawpanic/spotwatch/internal/trades"
)

// State is a venue-A symbol's position in the reconciliation state
// machine: unknown -> started -> snapshot_loaded -> live ->
// (resync | stopped).
type State int32

const (
	StateUnknown State = iota
	StateStarted
	StateSnapshotLoaded
	StateLive
	StateResync
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateSnapshotLoaded:
		return "snapshot_loaded"
	case StateLive:
		return "live"
	case StateResync:
		return "resync"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const pingInterval = 20 * time.Second
const pingTimeout = 20 * time.Second

// Worker streams one symbol's book and trades from venue A: a depth
// subtask implementing snapshot+delta reconciliation and a trade
// subtask pushing executions into the trade ring.
type Worker struct {
	Raw        string
	wsBaseURL  string
	depthLimit int

	rest    *RESTClient
	store   *book.Store
	tr      *trades.Store
	sink    *errs.Sink
	metrics *obs.Registry
	breaker *netutil.Breaker

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker builds a venue-A worker for raw symbol.
func NewWorker(raw, wsBaseURL string, depthLimit int, rest *RESTClient, store *book.Store, tr *trades.Store, sink *errs.Sink, metrics *obs.Registry) *Worker {
	return &Worker{
		Raw:        raw,
		wsBaseURL:  wsBaseURL,
		depthLimit: depthLimit,
		rest:       rest,
		store:      store,
		tr:         tr,
		sink:       sink,
		metrics:    metrics,
		breaker:    netutil.NewBreaker("venue_a_dial_" + raw),
	}
}

// State returns the worker's current FSM state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Start launches the depth and trade subtasks. Idempotent: calling
// Start twice without an intervening Stop is a no-op.
func (w *Worker) Start(parent context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.wg.Add(2)
	go w.runDepth(ctx)
	go w.runTrades(ctx)
}

// Stop cancels both subtasks, waits for them to exit, and discards the
// symbol's book and trade ring.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	w.state.Store(int32(StateStopped))
	w.store.Discard(VenueName, w.Raw)
	w.tr.Discard(VenueName, w.Raw)
}

func (w *Worker) runDepth(ctx context.Context) {
	defer w.wg.Done()
	backoff := netutil.NewBackoff(time.Second, 30*time.Second)

	for ctx.Err() == nil {
		w.state.Store(int32(StateStarted))

		snapshotID, bids, asks, err := w.rest.FetchSnapshot(ctx, w.Raw, w.depthLimit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.sink.Record("venue_a_snapshot:"+w.Raw, err)
			sleep(ctx, backoff.Next())
			continue
		}
		w.store.ApplySnapshot(VenueName, w.Raw, bids, asks, &snapshotID)
		w.state.Store(int32(StateSnapshotLoaded))

		if err := w.streamDepth(ctx, snapshotID, backoff); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.sink.Record("venue_a_depth:"+w.Raw, err)
			sleep(ctx, backoff.Next())
			continue
		}
	}
}

// streamDepth opens the depth socket and applies deltas under the
// sequence-id reconciliation protocol: deltas with u < snapshotID are
// stale; the first accepted delta must straddle snapshotID+1; every
// later delta must continue exactly where the previous one ended.
// Returns nil only when the caller should resync from a fresh snapshot;
// returns an error on socket failure.
func (w *Worker) streamDepth(ctx context.Context, snapshotID int64, backoff *netutil.Backoff) error {
	url := fmt.Sprintf("%s/%s@depth@100ms", w.wsBaseURL, strings.ToLower(w.Raw))

	connAny, err := w.breaker.Execute(func() (interface{}, error) {
		dialer := websocket.DefaultDialer
		c, _, err := dialer.DialContext(ctx, url, nil)
		return c, err
	})
	if err != nil {
		if w.metrics != nil {
			w.metrics.WSDisconnects.WithLabelValues(VenueName, "dial_failed").Inc()
		}
		return err
	}
	conn := connAny.(*websocket.Conn)
	defer conn.Close()
	if w.metrics != nil {
		w.metrics.WSConnects.WithLabelValues(VenueName).Inc()
	}

	// Unblock the read loop promptly on cancellation: a blocked
	// ReadMessage only returns once the socket is closed.
	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pingTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingTimeout))
		return nil
	})
	stopPing := make(chan struct{})
	defer close(stopPing)
	go pingLoop(conn, stopPing)

	reconciled := false
	var prevU int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if w.metrics != nil {
				w.metrics.WSDisconnects.WithLabelValues(VenueName, "read_error").Inc()
			}
			return err
		}

		frame, err := decodeDelta(data)
		if err != nil {
			w.sink.Record("venue_a_frame:"+w.Raw, err)
			continue
		}

		if frame.LastID < snapshotID {
			continue
		}

		if !reconciled {
			if frame.FirstID <= snapshotID+1 && snapshotID+1 <= frame.LastID {
				if err := w.applyDelta(frame); err != nil {
					return err
				}
				prevU = frame.LastID
				reconciled = true
				backoff.Reset()
				w.state.Store(int32(StateLive))
			}
			continue
		}

		if frame.FirstID != prevU+1 {
			w.state.Store(int32(StateResync))
			if w.metrics != nil {
				w.metrics.Resyncs.WithLabelValues(w.Raw).Inc()
			}
			return nil // caller restarts from a fresh snapshot
		}

		if err := w.applyDelta(frame); err != nil {
			return err
		}
		prevU = frame.LastID
	}
}

func (w *Worker) applyDelta(frame deltaFrame) error {
	bidUpdates, err := toUpdates(frame.BidUpdate)
	if err != nil {
		return err
	}
	askUpdates, err := toUpdates(frame.AskUpdate)
	if err != nil {
		return err
	}
	lastID := frame.LastID
	w.store.ApplyDelta(VenueName, w.Raw, bidUpdates, askUpdates, &lastID)
	return nil
}

func (w *Worker) runTrades(ctx context.Context) {
	defer w.wg.Done()
	backoff := netutil.NewBackoff(time.Second, 30*time.Second)
	url := fmt.Sprintf("%s/%s@trade", w.wsBaseURL, strings.ToLower(w.Raw))

	for ctx.Err() == nil {
		connAny, err := w.breaker.Execute(func() (interface{}, error) {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return c, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.sink.Record("venue_a_trade_dial:"+w.Raw, err)
			sleep(ctx, backoff.Next())
			continue
		}
		conn := connAny.(*websocket.Conn)
		connCtx, connCancel := context.WithCancel(ctx)
		go func() {
			<-connCtx.Done()
			conn.Close()
		}()
		conn.SetReadDeadline(time.Now().Add(pingTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pingTimeout))
			return nil
		})
		stopPing := make(chan struct{})
		go pingLoop(conn, stopPing)

		backoff.Reset()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			t, err := decodeTrade(data)
			if err != nil {
				w.sink.Record("venue_a_trade_frame:"+w.Raw, err)
				continue
			}
			w.tr.Push(VenueName, w.Raw, t)
		}
		close(stopPing)
		connCancel()
		if ctx.Err() != nil {
			return
		}
		sleep(ctx, backoff.Next())
	}
}

func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

