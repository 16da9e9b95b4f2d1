// Package exchange hosts the websocket connector that carries the trading session.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"avobot-go/internal/apperr"
	"avobot-go/internal/event"
	"avobot-go/internal/execution"
	"avobot-go/internal/market"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 15 * time.Second
	writeTimeout            = 5 * time.Second
	readLimit               = 1 << 20
)

// Option configures a WSConnector.
type Option func(*WSConnector)

// WithPingInterval overrides the keepalive cadence. The read deadline is twice the interval.
func WithPingInterval(d time.Duration) Option {
	return func(c *WSConnector) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithHandshakeTimeout bounds the websocket dial.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *WSConnector) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// WSConnector speaks the exchange's JSON-over-websocket protocol. Inbound frames are decoded into events and handed
// to the listeners from a single read goroutine.
type WSConnector struct {
	log          zerolog.Logger
	dialer       websocket.Dialer
	pingInterval time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	stop      context.CancelFunc
	listeners []event.Handler

	writeMu sync.Mutex
}

var _ execution.Connector = (*WSConnector)(nil)

// NewWSConnector builds a disconnected connector.
func NewWSConnector(log zerolog.Logger, opts ...Option) *WSConnector {
	c := &WSConnector{
		log:          log.With().Str("component", "exchange").Logger(),
		dialer:       websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddListener registers h for every inbound event.
func (c *WSConnector) AddListener(h event.Handler) {
	c.mu.Lock()
	c.listeners = append(c.listeners, h)
	c.mu.Unlock()
}

// Connect dials host, replacing any previous session, and authenticates with apiKey.
func (c *WSConnector) Connect(ctx context.Context, host, apiKey string) error {
	url := normalizeURL(host)
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", apperr.ErrConnectionFailed, url, err)
	}
	conn.SetReadLimit(readLimit)

	sessionCtx, stop := context.WithCancel(context.Background())
	c.mu.Lock()
	prev, prevStop := c.conn, c.stop
	c.conn, c.stop = conn, stop
	c.mu.Unlock()
	if prev != nil {
		prevStop()
		_ = prev.Close()
	}

	if err := c.SendLogin(apiKey); err != nil {
		c.Close()
		return fmt.Errorf("%w: login: %v", apperr.ErrConnectionFailed, err)
	}

	go c.keepalive(sessionCtx, conn)
	go c.readLoop(sessionCtx, conn)
	c.log.Info().Str("url", url).Msg("exchange session opened")
	return nil
}

// Close ends the current session without raising ConnectionLost.
func (c *WSConnector) Close() error {
	c.mu.Lock()
	conn, stop := c.conn, c.stop
	c.conn, c.stop = nil, nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	stop()
	return conn.Close()
}

// SendOrder writes an ORDER frame.
func (c *WSConnector) SendOrder(order execution.Order) error {
	return c.write(orderMessage{Type: typeOrder, Order: order})
}

// SendProductionUpdate writes a PRODUCTION_UPDATE frame.
func (c *WSConnector) SendProductionUpdate(product market.Product, quantity int) error {
	return c.write(productionMessage{Type: typeProductionUpdate, Product: product, Quantity: quantity})
}

// SendOfferResponse writes an ACCEPT_OFFER frame.
func (c *WSConnector) SendOfferResponse(offerID string, accept bool, quantity int, price float64) error {
	return c.write(acceptOfferMessage{
		Type:            typeAcceptOffer,
		OfferID:         offerID,
		Accept:          accept,
		QuantityOffered: quantity,
		PriceOffered:    price,
	})
}

// SendLogin writes a LOGIN frame.
func (c *WSConnector) SendLogin(apiKey string) error {
	return c.write(loginMessage{Type: typeLogin, Token: apiKey})
}

func (c *WSConnector) write(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: not connected", apperr.ErrConnectionFailed)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("%w: write: %v", apperr.ErrConnectionFailed, err)
	}
	return nil
}

func (c *WSConnector) readLoop(ctx context.Context, conn *websocket.Conn) {
	deadline := 2 * c.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Msg("exchange session dropped")
			c.detach(conn)
			c.emit(event.ConnectionLost{Cause: err})
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(deadline))

		ev, err := decode(message)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to decode exchange message")
			continue
		}
		if ev == nil {
			c.log.Debug().Bytes("raw", message).Msg("ignoring unknown message type")
			continue
		}
		c.emit(ev)
	}
}

func (c *WSConnector) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.log.Warn().Err(err).Msg("exchange ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// detach forgets conn if it is still the current session.
func (c *WSConnector) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.stop()
		c.conn, c.stop = nil, nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *WSConnector) emit(ev event.Event) {
	c.mu.Lock()
	listeners := append([]event.Handler(nil), c.listeners...)
	c.mu.Unlock()
	for _, h := range listeners {
		h.Handle(ev)
	}
}

func normalizeURL(host string) string {
	host = strings.TrimSpace(host)
	if strings.Contains(host, "://") {
		return host
	}
	return "ws://" + host
}
