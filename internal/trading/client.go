// Package trading applies the account's business rules on top of the state store and talks to the exchange through
// an execution.Connector.
package trading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"avobot-go/internal/apperr"
	"avobot-go/internal/execution"
	"avobot-go/internal/journal"
	"avobot-go/internal/market"
	"avobot-go/internal/recipe"
	"avobot-go/internal/snapshot"
	"avobot-go/internal/state"
)

// DefaultReconnectDelay is the pause before the single reconnect attempt that follows a lost connection.
const DefaultReconnectDelay = 3 * time.Second

// Settings are the session inputs of a client.
type Settings struct {
	APIKey       string
	Host         string
	Species      string
	Team         string
	SnapshotsDir string
}

// Option customizes a Client.
type Option func(*Client)

// WithSequence replaces the order id generator.
func WithSequence(seq *execution.Sequence) Option {
	return func(c *Client) { c.seq = seq }
}

// WithJournal records every settled fill.
func WithJournal(r journal.Recorder) Option {
	return func(c *Client) { c.journal = r }
}

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.reconnectDelay = d
		}
	}
}

// Client is the trading session: it validates and dispatches orders, produces goods and keeps the store in sync with
// inbound exchange events.
type Client struct {
	store     *state.Store
	conn      execution.Connector
	resolver  *recipe.Resolver
	snapshots *snapshot.Manager
	seq       *execution.Sequence
	journal   journal.Recorder
	settings  Settings
	log       zerolog.Logger

	offersMu sync.Mutex
	offers   map[string]market.Offer

	listenOnce     sync.Once
	reconnectDelay time.Duration
	reconnecting   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a client. resolver may be nil, in which case recipes come from the store only.
func New(store *state.Store, conn execution.Connector, resolver *recipe.Resolver, settings Settings, log zerolog.Logger, opts ...Option) *Client {
	if resolver == nil {
		resolver = recipe.NewResolver(store, nil, settings.Species, settings.Team, log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:          store,
		conn:           conn,
		resolver:       resolver,
		snapshots:      snapshot.NewManager(settings.SnapshotsDir),
		seq:            execution.NewSequence(),
		settings:       settings,
		log:            log.With().Str("component", "trading").Logger(),
		offers:         make(map[string]market.Offer),
		reconnectDelay: DefaultReconnectDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the state store backing the client.
func (c *Client) Store() *state.Store { return c.store }

// Identity returns the species and team currently used for recipe lookups.
func (c *Client) Identity() (species, team string) { return c.resolver.Identity() }

// Connect registers the client as a listener (once per client) and opens the session.
func (c *Client) Connect(ctx context.Context) error {
	c.listenOnce.Do(func() { c.conn.AddListener(c) })
	if err := c.conn.Connect(ctx, c.settings.Host, c.settings.APIKey); err != nil {
		if errors.Is(err, apperr.ErrConnectionFailed) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", apperr.ErrConnectionFailed, c.settings.Host, err)
	}
	c.log.Info().Str("host", c.settings.Host).Msg("connected")
	return nil
}

// Close stops background reconnect work and waits for it to finish.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

// Resync asks the exchange to resend the login bootstrap.
func (c *Client) Resync() error {
	if err := c.conn.SendLogin(c.settings.APIKey); err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	c.log.Info().Msg("resync requested")
	return nil
}

// ResolveProduct normalizes a user supplied product name. Names that are blank or match nothing the session knows
// (authorized products, recipes, inventory, local catalog) are reported as unauthorized.
func (c *Client) ResolveProduct(name string) (market.Product, error) {
	p := market.ParseProduct(name)
	if p == "" || !(c.store.Known(p) || c.resolver.Knows(p)) {
		return "", unauthorized(name, c.store.AuthorizedProducts())
	}
	return p, nil
}

// Sellable returns the units of p that are held and not promised to an in-flight sell order.
func (c *Client) Sellable(p market.Product) int { return c.store.Sellable(p) }

// PendingOffers returns the offers awaiting an answer, ordered by id.
func (c *Client) PendingOffers() []market.Offer {
	c.offersMu.Lock()
	out := make([]market.Offer, 0, len(c.offers))
	for _, o := range c.offers {
		out = append(out, o)
	}
	c.offersMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OfferID < out[j].OfferID })
	return out
}

func (c *Client) storeOffer(o market.Offer) {
	c.offersMu.Lock()
	c.offers[o.OfferID] = o
	c.offersMu.Unlock()
}

func (c *Client) takeOffer(id string) (market.Offer, bool) {
	c.offersMu.Lock()
	defer c.offersMu.Unlock()
	o, ok := c.offers[id]
	if ok {
		delete(c.offers, id)
	}
	return o, ok
}

// SaveSnapshot writes the current account state and returns the file it went to.
func (c *Client) SaveSnapshot(destination string) (string, error) {
	path, err := c.snapshots.Save(c.store.Snapshot(), destination)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("path", path).Msg("snapshot saved")
	return path, nil
}

// LoadSnapshot replaces the whole account state with the one stored at path.
func (c *Client) LoadSnapshot(path string) error {
	st, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	c.store.CopyFrom(st)
	c.log.Info().Str("path", path).Msg("snapshot loaded")
	return nil
}

func unauthorized(name string, allowed []market.Product) error {
	names := make([]string, 0, len(allowed))
	for _, p := range allowed {
		names = append(names, p.String())
	}
	return &apperr.UnauthorizedError{Product: strings.TrimSpace(name), Allowed: names}
}
