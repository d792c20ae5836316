package lavalink

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// healthLoop probes GET /stats. After HealthCheckThreshold consecutive
// failures the socket is dropped, which triggers the reconnect path.
func (n *Node) healthLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(n.options.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats, err := n.FetchStats(ctx)
		if ctx.Err() != nil {
			return
		}

		n.mu.Lock()
		if n.conn != conn {
			n.mu.Unlock()
			return
		}
		if err == nil {
			n.healthFailures = 0
			n.stats = stats
			n.mu.Unlock()
			continue
		}
		n.healthFailures++
		failures := n.healthFailures
		n.mu.Unlock()

		if n.logger != nil {
			n.logger.Warn("health check failed", "failures", failures, "error", err)
		}
		if failures >= n.options.HealthCheckThreshold {
			n.reportError(&NodeError{
				Node: n.options.Identifier,
				Op:   "health check",
				Err:  fmt.Errorf("%d consecutive failures: %w", failures, err),
			}, false)
			n.forceClose()
			return
		}
	}
}
