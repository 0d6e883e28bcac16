package venuea

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/netutil"
)

// RESTClient fetches snapshots, exchange info, and ticker stats from
// venue A, rate-limited and retried.
type RESTClient struct {
	http    *resty.Client
	limiter *netutil.Limiter
}

const restHost = "venue-a-rest"

// NewRESTClient builds a client against baseURL with a 10s total
// timeout and up to 3 retries on transport errors or 5xx responses,
// waiting from 0.5s up to at most 2s between attempts.
func NewRESTClient(baseURL string, limiter *netutil.Limiter) *RESTClient {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &RESTClient{http: http, limiter: limiter}
}

// FetchSnapshot retrieves the REST depth snapshot for raw symbol with
// the given depth limit, capped at the venue's 1000-level maximum.
func (c *RESTClient) FetchSnapshot(ctx context.Context, raw string, depth int) (int64, []book.Update, []book.Update, error) {
	if depth > 1000 {
		depth = 1000
	}
	if err := c.limiter.Wait(ctx, restHost); err != nil {
		return 0, nil, nil, err
	}

	var resp snapshotResponse
	r, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": raw,
			"limit":  fmt.Sprintf("%d", depth),
		}).
		SetResult(&resp).
		Get("/depth")
	if err != nil {
		return 0, nil, nil, fmt.Errorf("fetch snapshot for %s: %w", raw, err)
	}
	if r.StatusCode() != 200 {
		return 0, nil, nil, fmt.Errorf("fetch snapshot for %s: status %d", raw, r.StatusCode())
	}

	bids, err := toUpdates(resp.Bids)
	if err != nil {
		return 0, nil, nil, err
	}
	asks, err := toUpdates(resp.Asks)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.LastUpdateID, bids, asks, nil
}

func toUpdates(raw [][2]string) ([]book.Update, error) {
	out := make([]book.Update, 0, len(raw))
	for _, lvl := range raw {
		size, err := book.MustParsePrice(lvl[1])
		if err != nil {
			return nil, err
		}
		out = append(out, book.Update{Price: lvl[0], Size: size})
	}
	return out, nil
}

// FetchExchangeInfo returns every symbol's trading status and quote
// asset for the universe sampler.
func (c *RESTClient) FetchExchangeInfo(ctx context.Context) ([]ExchangeSymbol, error) {
	if err := c.limiter.Wait(ctx, restHost); err != nil {
		return nil, err
	}
	var resp exchangeInfoResponse
	r, err := c.http.R().SetContext(ctx).SetResult(&resp).Get("/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	if r.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch exchange info: status %d", r.StatusCode())
	}
	return resp.Symbols, nil
}

// FetchTickerStats returns 24h ticker stats for every symbol.
func (c *RESTClient) FetchTickerStats(ctx context.Context) ([]TickerStat, error) {
	if err := c.limiter.Wait(ctx, restHost); err != nil {
		return nil, err
	}
	var resp []TickerStat
	r, err := c.http.R().SetContext(ctx).SetResult(&resp).Get("/ticker/24hr")
	if err != nil {
		return nil, fmt.Errorf("fetch ticker stats: %w", err)
	}
	if r.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch ticker stats: status %d", r.StatusCode())
	}
	return resp, nil
}
