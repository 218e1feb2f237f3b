// Package bus is a thin pub/sub client over the message bus: inbound
// subscriptions to the two venue price topics and outbound publication to
// the loan-events topic.
package bus

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"beskarliquidator/pkg/utils"
)

// Handler is invoked with the raw payload of every message received on a
// subscribed topic.
type Handler func(payload []byte)

// Client is a reconnecting websocket pub/sub client, grounded on the same
// read-loop/reconnect idiom the exchange websocket feeds used. connMu
// guards every access to conn, since the read loop swaps it out from under
// concurrent Publish/Subscribe callers on reconnect.
type Client struct {
	endpoint string
	clock    utils.Clock
	log      *utils.Logger

	connMu sync.RWMutex
	conn   *websocket.Conn
}

// New constructs a Client against endpoint (a ws:// or wss:// URL).
func New(endpoint string, clock utils.Clock, log *utils.Logger) *Client {
	return &Client{endpoint: endpoint, clock: clock, log: log}
}

// Connect dials the bus endpoint. It must succeed before Subscribe or
// Publish are called.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := url.Parse(c.endpoint); err != nil {
		return fmt.Errorf("parse bus endpoint: %w", err)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// getConn returns the current connection, or nil if not connected.
func (c *Client) getConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// writeJSON serializes v onto the current connection under the same lock
// Connect uses to swap conn, so a reconnect mid-write can't hand a writer
// a closed connection.
func (c *Client) writeJSON(v interface{}) error {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		return fmt.Errorf("bus client not connected")
	}
	return c.conn.WriteJSON(v)
}

// subscribeMessage is the wire envelope used to subscribe to a topic;
// publishMessage is its counterpart for publishing onto one.
type subscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type publishMessage struct {
	Action  string          `json:"action"`
	Topic   string          `json:"topic"`
	Payload map[string]string `json:"payload"`
}

// Subscribe registers handler against topic and runs a reconnecting read
// loop in the background until ctx is cancelled. Reconnects back off by
// doubling the delay, starting at 500ms and capping at 30s, with no jitter.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := c.writeJSON(subscribeMessage{Action: "subscribe", Topic: topic}); err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", topic, err)
	}

	go c.readLoop(ctx, topic, handler)
	return nil
}

func (c *Client) readLoop(ctx context.Context, topic string, handler Handler) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn := c.getConn()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("bus read failed, reconnecting", utils.String("topic", topic), utils.Err(err))
			c.clock.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			if rerr := c.Connect(ctx); rerr != nil {
				continue
			}
			if rerr := c.writeJSON(subscribeMessage{Action: "subscribe", Topic: topic}); rerr != nil {
				continue
			}
			backoff = 500 * time.Millisecond
			continue
		}

		backoff = 500 * time.Millisecond
		handler(payload)
	}
}

// Publish sends payload to topic and returns once the write completes.
// The bus protocol itself is at-least-once; callers (the Event Publisher)
// are responsible for de-duplication hints.
func (c *Client) Publish(ctx context.Context, topic string, payload map[string]string) error {
	return c.writeJSON(publishMessage{Action: "publish", Topic: topic, Payload: payload})
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	conn := c.getConn()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
