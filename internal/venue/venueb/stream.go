package venueb

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/netutil"
	"github.com/sawpanic/spotwatch/internal/obs"
	"github.com/sawpanic/spotwatch/internal/trades"
	"github.com/sawpanic/spotwatch/internal/venue"
)

const pingInterval = 20 * time.Second
const pingTimeout = 20 * time.Second

// Worker runs the single multiplexed socket for every configured
// venue-B pair: one connection, book+trade subscriptions for the whole
// pair set, tagged-frame dispatch.
type Worker struct {
	Pairs     []string
	wsURL     string
	depth     int
	store     *book.Store
	tr        *trades.Store
	sink      *errs.Sink
	metrics   *obs.Registry
	breaker   *netutil.Breaker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker builds the venue-B worker for the configured pair set.
func NewWorker(wsURL string, pairs []string, depth int, store *book.Store, tr *trades.Store, sink *errs.Sink, metrics *obs.Registry) *Worker {
	return &Worker{
		Pairs:   pairs,
		wsURL:   wsURL,
		depth:   depth,
		store:   store,
		tr:      tr,
		sink:    sink,
		metrics: metrics,
		breaker: netutil.NewBreaker("venue_b_dial"),
	}
}

// Start launches the connection loop. Idempotent.
func (w *Worker) Start(parent context.Context) {
	if w.cancel != nil || len(w.Pairs) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop cancels the connection loop, waits for it to exit, and discards
// every pair's book and trade ring.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	for _, pair := range w.Pairs {
		w.store.Discard(VenueName, pair)
		w.tr.Discard(VenueName, pair)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	backoff := netutil.NewBackoff(time.Second, 30*time.Second)

	for ctx.Err() == nil {
		if err := w.connectAndStream(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.sink.Record("venue_b_stream", err)
			sleep(ctx, backoff.Next())
			continue
		}
		backoff.Reset()
	}
}

func (w *Worker) connectAndStream(ctx context.Context) error {
	connAny, err := w.breaker.Execute(func() (interface{}, error) {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, w.wsURL, nil)
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

	if err := w.subscribe(conn); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(pingTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pingTimeout))
		return nil
	})
	stopPing := make(chan struct{})
	defer close(stopPing)
	go pingLoop(conn, stopPing)

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
		w.dispatch(data)
	}
}

func (w *Worker) subscribe(conn *websocket.Conn) error {
	bookSub := subscribeRequest{
		Event: "subscribe",
		Pair:  w.Pairs,
		Subscription: map[string]interface{}{
			"name":  "book",
			"depth": w.depth,
		},
	}
	tradeSub := subscribeRequest{
		Event: "subscribe",
		Pair:  w.Pairs,
		Subscription: map[string]interface{}{
			"name": "trade",
		},
	}
	for _, sub := range []subscribeRequest{bookSub, tradeSub} {
		data, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) dispatch(data []byte) {
	frame, kind, err := decodeEnvelope(data)
	if err != nil {
		w.sink.Record("venue_b_frame", err)
		return
	}
	switch kind {
	case venue.FrameSnapshot:
		bids, err := toUpdates(frame.Bs)
		if err != nil {
			w.sink.Record("venue_b_snapshot", err)
			return
		}
		asks, err := toUpdates(frame.As)
		if err != nil {
			w.sink.Record("venue_b_snapshot", err)
			return
		}
		w.store.ApplySnapshot(VenueName, frame.Pair, bids, asks, nil)
	case venue.FrameDelta:
		bids, err := toUpdates(frame.B)
		if err != nil {
			w.sink.Record("venue_b_delta", err)
			return
		}
		asks, err := toUpdates(frame.A)
		if err != nil {
			w.sink.Record("venue_b_delta", err)
			return
		}
		w.store.ApplyDelta(VenueName, frame.Pair, bids, asks, nil)
	case venue.FrameTrade:
		ts, err := toTrades(frame.Trade)
		if err != nil {
			w.sink.Record("venue_b_trade", err)
			return
		}
		for _, t := range ts {
			w.tr.Push(VenueName, frame.Pair, t)
		}
	case venue.FrameHeartbeat, venue.FrameEvent:
		// nothing to apply; presence alone keeps the read deadline alive.
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
