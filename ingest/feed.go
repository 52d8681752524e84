// Package ingest consumes the order ledger's websocket feed and folds
// order events into the daily sales table. The sales ledger is the
// engine's only demand input; everything downstream recomputes from it.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"demandcast/cache"
	"demandcast/database/sales"
	"demandcast/metrics"
)

// OrderEvent is one order line from the upstream ledger.
type OrderEvent struct {
	SKU        string    `json:"sku"`
	Quantity   float64   `json:"quantity"`
	Revenue    float64   `json:"revenue"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Client wraps the websocket connection to the order ledger.
type Client struct {
	url     string
	conn    *websocket.Conn
	header  http.Header
	writeMu sync.Mutex
}

// NewClient creates a new feed client
func NewClient(url, authToken string) *Client {
	header := make(http.Header)
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}
	return &Client{
		url:    url,
		header: header,
	}
}

// Connect establishes the websocket connection
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.conn = conn
	log.Printf("✅ Connected to order feed at %s", c.url)
	return nil
}

// ReadEvent reads and decodes one order event
func (c *Client) ReadEvent() (*OrderEvent, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var ev OrderEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode order event: %w", err)
	}
	return &ev, nil
}

// Ping sends a keepalive frame thread-safely
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Feed runs the consume loop: read order events, fold them into daily
// sales, drop the affected SKU's cached forecasts.
type Feed struct {
	url       string
	authToken string
	repo      *sales.Repository
	fcache    *cache.ForecastCache
	horizons  []int
}

// NewFeed creates the order-feed consumer
func NewFeed(url, authToken string, repo *sales.Repository, fcache *cache.ForecastCache, horizons []int) *Feed {
	return &Feed{
		url:       url,
		authToken: authToken,
		repo:      repo,
		fcache:    fcache,
		horizons:  horizons,
	}
}

// Run consumes the feed until ctx is cancelled, reconnecting with backoff
// on connection loss.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		client := NewClient(f.url, f.authToken)
		if err := client.Connect(); err != nil {
			log.Printf("⚠️  Order feed connect failed: %v (retrying in %s)", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		f.consume(ctx, client)
		client.Close()
	}
}

func (f *Feed) consume(ctx context.Context, client *Client) {
	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					log.Printf("⚠️  Order feed ping failed: %v", err)
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		ev, err := client.ReadEvent()
		if err != nil {
			log.Printf("⚠️  Order feed read failed: %v (reconnecting)", err)
			return
		}
		if ev.SKU == "" || ev.Quantity <= 0 {
			continue
		}

		if err := f.repo.AddUnits(ev.SKU, ev.OccurredAt, ev.Quantity, ev.Revenue); err != nil {
			log.Printf("⚠️  Failed to persist order event for %s: %v", ev.SKU, err)
			continue
		}
		metrics.OrderEventsTotal.Inc()

		if f.fcache != nil {
			f.fcache.Invalidate(ctx, ev.SKU, f.horizons...)
		}
	}
}
