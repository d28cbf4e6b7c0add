package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"cloudpico-humidity/internal/flow"
	"cloudpico-humidity/internal/metrics"
	"cloudpico-humidity/internal/mqtt"
)

type subscriber interface {
	Subscribe(filter string, handler mqtt.Handler) error
	Unsubscribe(filters ...string) error
}

// deployer keeps the runtime's nodes and the broker subscriptions in step.
// Nodes sharing an input filter share one subscription.
type deployer struct {
	ctx     context.Context
	runtime *flow.Runtime
	sub     subscriber
	metrics *metrics.Registry
	logger  *slog.Logger

	mu     sync.RWMutex
	routes map[string][]string // input filter -> node names
}

func newDeployer(ctx context.Context, rt *flow.Runtime, sub subscriber, reg *metrics.Registry, logger *slog.Logger) *deployer {
	return &deployer{
		ctx:     ctx,
		runtime: rt,
		sub:     sub,
		metrics: reg,
		logger:  logger,
		routes:  make(map[string][]string),
	}
}

func (d *deployer) deploy(defs []flow.Definition) error {
	next := make(map[string][]string)
	for _, def := range defs {
		next[def.Input] = append(next[def.Input], def.Name)
	}
	for _, names := range next {
		sort.Strings(names)
	}

	d.mu.Lock()
	if err := d.runtime.Deploy(defs); err != nil {
		d.mu.Unlock()
		return err
	}
	prev := d.routes
	d.routes = next
	d.mu.Unlock()

	d.metrics.SetDeployed(len(defs))

	var errs []error
	var stale []string
	for filter := range prev {
		if _, ok := next[filter]; !ok {
			stale = append(stale, filter)
		}
	}
	if err := d.sub.Unsubscribe(stale...); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe %v: %w", stale, err))
	}
	for filter := range next {
		if _, ok := prev[filter]; ok {
			continue
		}
		if err := d.sub.Subscribe(filter, d.handler(filter)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handler resolves the nodes for filter on every message, so a redeploy
// that keeps the filter needs no resubscribe.
func (d *deployer) handler(filter string) mqtt.Handler {
	return func(topic string, payload []byte) {
		d.mu.RLock()
		names := d.routes[filter]
		d.mu.RUnlock()

		msg := mqtt.DecodeMessage(topic, payload)
		for _, name := range names {
			if _, err := d.runtime.Deliver(d.ctx, name, msg); err != nil {
				d.logger.Error("mqtt delivery failed", "node", name, "topic", topic, "error", err)
			}
		}
	}
}
