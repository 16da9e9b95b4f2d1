package trading

import (
	"time"

	"avobot-go/internal/event"
	"avobot-go/internal/metrics"
)

// onConnectionLost schedules one reconnect attempt after the configured delay. While an attempt is pending further
// losses are ignored.
func (c *Client) onConnectionLost(e event.ConnectionLost) {
	l := c.log.Warn()
	if e.Cause != nil {
		l = l.Err(e.Cause)
	}
	l.Msg("connection lost")

	if !c.reconnecting.CompareAndSwap(false, true) {
		metrics.ReconnectsTotal.WithLabelValues("suppressed").Inc()
		c.log.Debug().Msg("reconnect already in progress")
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.reconnecting.Store(false)

		timer := time.NewTimer(c.reconnectDelay)
		defer timer.Stop()
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
		}

		if err := c.Connect(c.ctx); err != nil {
			metrics.ReconnectsTotal.WithLabelValues("failed").Inc()
			c.log.Error().Err(err).Msg("reconnect failed")
			return
		}
		metrics.ReconnectsTotal.WithLabelValues("ok").Inc()
	}()
}

// Reconnecting reports whether a reconnect attempt is pending.
func (c *Client) Reconnecting() bool { return c.reconnecting.Load() }
