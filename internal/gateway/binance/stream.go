package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"conductor/internal/gateway/exchange"
	"conductor/internal/logger"
	symbolpkg "conductor/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// wsServe opens one combined stream and returns its done and stop channels.
type wsServe func(errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// SubscribeQuotes streams the book ticker of every symbol. The stream is
// reopened with backoff until ctx ends or Close is called.
func (c *Client) SubscribeQuotes(ctx context.Context, symbols []string) error {
	names := exchangeNames(symbols)
	if len(names) == 0 {
		return fmt.Errorf("no valid symbols for quote subscription")
	}
	handler := func(ev *futures.WsBookTickerEvent) {
		q, ok := convertBookTicker(ev, names)
		if !ok {
			return
		}
		c.cbMu.RLock()
		fn := c.onQuote
		c.cbMu.RUnlock()
		if fn != nil {
			fn(q)
		}
	}
	serve := func(errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		return futures.WsCombinedBookTickerServe(keys(names), handler, errHandler)
	}
	c.startLoop(ctx, "bookTicker", serve, &c.quoteCancel)
	return nil
}

// SubscribeBars streams one-minute klines and forwards closed bars only.
func (c *Client) SubscribeBars(ctx context.Context, symbols []string) error {
	names := exchangeNames(symbols)
	if len(names) == 0 {
		return fmt.Errorf("no valid symbols for bar subscription")
	}
	mapping := make(map[string][]string, len(names))
	for exch := range names {
		mapping[exch] = []string{"1m"}
	}
	handler := func(ev *futures.WsKlineEvent) {
		bar, ok := convertKlineEvent(ev, names)
		if !ok {
			return
		}
		c.cbMu.RLock()
		fn := c.onBar
		c.cbMu.RUnlock()
		if fn != nil {
			fn(bar)
		}
	}
	serve := func(errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
		return futures.WsCombinedKlineServeMultiInterval(mapping, handler, errHandler)
	}
	c.startLoop(ctx, "kline", serve, &c.barCancel)
	return nil
}

func (c *Client) startLoop(ctx context.Context, stream string, serve wsServe, slot *context.CancelFunc) {
	subCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if *slot != nil {
		(*slot)()
	}
	*slot = cancel
	c.mu.Unlock()
	go c.runLoop(subCtx, stream, serve)
}

func (c *Client) runLoop(ctx context.Context, stream string, serve wsServe) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := serve(errHandler)
		if err != nil {
			c.emitError(fmt.Errorf("%s subscribe: %w", stream, err))
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		logger.Infof("[binance] %s stream connected", stream)
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		close(stopC)
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		if errCopy == nil {
			errCopy = fmt.Errorf("%s stream closed", stream)
		}
		c.emitError(fmt.Errorf("%w: %v", exchange.ErrDisconnected, errCopy))
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

// exchangeNames maps the venue symbol to the name the caller subscribed with.
func exchangeNames(symbols []string) map[string]string {
	out := make(map[string]string, len(symbols))
	for _, name := range symbols {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[symbolpkg.Binance.ToExchange(name)] = name
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(current time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}
