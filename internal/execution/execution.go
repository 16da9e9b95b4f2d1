// Package execution handles outbound order construction and the dry-run venue.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"avobot-go/internal/event"
	"avobot-go/internal/market"
)

// Mode is the pricing mode of an order. Only market orders are sent.
type Mode string

// Market executes at the prevailing price.
const Market Mode = "MARKET"

// Order represents a placement request sent to the exchange.
type Order struct {
	ClientOrderID string         `json:"clOrdID"`
	Side          market.Side    `json:"side"`
	Mode          Mode           `json:"mode"`
	Product       market.Product `json:"product"`
	Qty           int            `json:"qty"`
	Message       string         `json:"message,omitempty"`
}

// Connector is the outbound side of an exchange session. Implementations deliver inbound traffic to the
// registered listeners.
type Connector interface {
	Connect(ctx context.Context, host, apiKey string) error
	AddListener(event.Handler)
	SendOrder(Order) error
	SendProductionUpdate(product market.Product, quantity int) error
	SendOfferResponse(offerID string, accept bool, quantity int, price float64) error
	SendLogin(apiKey string) error
}

var _ Connector = (*Executor)(nil)

// Sequence hands out client order ids that are unique for the lifetime of the process.
type Sequence struct {
	mu      sync.Mutex
	session string
	next    uint64
	now     func() time.Time
}

// NewSequence creates a generator tagged with a fresh session identifier.
func NewSequence() *Sequence {
	return &Sequence{session: uuid.NewString()[:8], now: time.Now}
}

// Next returns ORD-<session>-<unixMillis>-<counter>.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("ORD-%s-%d-%d", s.session, s.now().UnixMilli(), s.next)
}

// Executor is a dry-run venue: it accepts every outbound message and only logs it.
type Executor struct {
	log       zerolog.Logger
	mu        sync.Mutex
	listeners []event.Handler
	orders    []Order
}

// NewExecutor wraps a zerolog logger for dry-run submissions.
func NewExecutor(log zerolog.Logger) *Executor { return &Executor{log: log} }

// Connect records the session target; nothing is dialed.
func (executor *Executor) Connect(_ context.Context, host, _ string) error {
	executor.log.Info().Str("host", host).Msg("dry-run connector ready")
	return nil
}

// AddListener registers a handler. The dry-run venue never emits events on its own; see Emit.
func (executor *Executor) AddListener(h event.Handler) {
	executor.mu.Lock()
	executor.listeners = append(executor.listeners, h)
	executor.mu.Unlock()
}

// Emit delivers ev to every listener, letting operators replay exchange traffic offline.
func (executor *Executor) Emit(ev event.Event) {
	executor.mu.Lock()
	listeners := append([]event.Handler(nil), executor.listeners...)
	executor.mu.Unlock()
	for _, h := range listeners {
		h.Handle(ev)
	}
}

// SendOrder logs the order request.
func (executor *Executor) SendOrder(order Order) error {
	executor.mu.Lock()
	executor.orders = append(executor.orders, order)
	executor.mu.Unlock()
	executor.log.Info().
		Str("clOrdID", order.ClientOrderID).
		Str("product", order.Product.String()).
		Str("side", string(order.Side)).
		Int("qty", order.Qty).
		Str("message", order.Message).
		Msg("submit order (dry-run)")
	return nil
}

// SendProductionUpdate logs the production notice.
func (executor *Executor) SendProductionUpdate(product market.Product, quantity int) error {
	executor.log.Info().Str("product", product.String()).Int("qty", quantity).Msg("production update (dry-run)")
	return nil
}

// SendOfferResponse logs the accept/reject answer.
func (executor *Executor) SendOfferResponse(offerID string, accept bool, quantity int, price float64) error {
	executor.log.Info().Str("offer", offerID).Bool("accept", accept).Int("qty", quantity).Float64("px", price).Msg("offer response (dry-run)")
	return nil
}

// SendLogin logs a login request.
func (executor *Executor) SendLogin(string) error {
	executor.log.Info().Msg("login (dry-run)")
	return nil
}

// Orders returns a copy of every order seen so far.
func (executor *Executor) Orders() []Order {
	executor.mu.Lock()
	defer executor.mu.Unlock()
	out := make([]Order, len(executor.orders))
	copy(out, executor.orders)
	return out
}
