package metrics

import (
	"context"
	"time"

	"github.com/localzure/localzure/pkg/state"
)

// SecretCounter reports live and soft-deleted secret counts. The Key Vault
// engine implements it.
type SecretCounter interface {
	SecretCounts(ctx context.Context) (live int, deleted int, err error)
}

// Collector periodically samples gauge metrics from the state backend and
// the secret engine
type Collector struct {
	backend  state.Backend
	secrets  SecretCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(backend state.Backend, secrets SecretCounter) *Collector {
	return &Collector{
		backend:  backend,
		secrets:  secrets,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectStateMetrics(ctx)
	c.collectSecretMetrics(ctx)
}

func (c *Collector) collectStateMetrics(ctx context.Context) {
	if c.backend == nil {
		return
	}

	namespaces, err := c.backend.Namespaces(ctx)
	if err != nil {
		return
	}

	for _, ns := range namespaces {
		keys, err := c.backend.List(ctx, ns, "*")
		if err != nil {
			continue
		}
		StateKeysTotal.WithLabelValues(ns).Set(float64(len(keys)))
	}
}

func (c *Collector) collectSecretMetrics(ctx context.Context) {
	if c.secrets == nil {
		return
	}

	live, deleted, err := c.secrets.SecretCounts(ctx)
	if err != nil {
		return
	}

	SecretsTotal.Set(float64(live))
	DeletedSecretsTotal.Set(float64(deleted))
}
