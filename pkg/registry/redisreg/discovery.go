package redisreg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/xlog"
)

// scanCount is the batch size for SCAN iterations.
const scanCount = 100

// Discovery polls the instances of one service in redis. Redis offers no
// watch primitive over plain keys, so the instance list is re-scanned at a
// fraction of the endpoint's session; expired registrations disappear from
// the scan automatically. It implements registry.Discovery.
type Discovery struct {
	log    *xlog.Logger
	client redis.UniversalClient

	group    string
	interval time.Duration

	serviceName string
	instances   map[string]*registry.Instance
	mu          sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDiscovery creates a Discovery against the given endpoint. It returns
// registry.ErrSubscribeDisabled when the endpoint is register-only.
func NewDiscovery(log *xlog.Logger, cfg *endpoint.Config, client redis.UniversalClient) (*Discovery, error) {
	if !cfg.SubscribeEnabled() {
		return nil, registry.ErrSubscribeDisabled
	}

	interval := cfg.SessionOrDefault() / 3
	if interval < time.Second {
		interval = time.Second
	}

	return &Discovery{
		log:       log,
		client:    client,
		group:     cfg.Group,
		interval:  interval,
		instances: make(map[string]*registry.Instance),
	}, nil
}

// Watch loads the current instances of serviceName and starts the poll loop.
func (d *Discovery) Watch(ctx context.Context, serviceName string) error {
	if serviceName == "" {
		return fmt.Errorf("service name is required")
	}

	d.serviceName = serviceName
	pattern := registry.ServicePrefix(serviceName, d.group) + "*"

	if err := d.loadInstances(ctx, pattern); err != nil {
		return fmt.Errorf("failed to load instances: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.poll(pollCtx, pattern)
	}()

	return nil
}

// poll re-scans the service keys at the poll interval.
func (d *Discovery) poll(ctx context.Context, pattern string) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := d.loadInstances(ctx, pattern); err != nil {
				d.log.Error("poll failed", "error", err)
			}
		case <-ctx.Done():
			d.log.Info("poll stopped", "error", ctx.Err())
			return
		}
	}
}

// loadInstances scans all keys matching pattern and replaces the instance
// set.
func (d *Discovery) loadInstances(ctx context.Context, pattern string) error {
	keys, err := d.scanKeys(ctx, pattern)
	if err != nil {
		return err
	}

	fresh := make(map[string]*registry.Instance, len(keys))
	if len(keys) > 0 {
		values, err := d.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				// Key expired between SCAN and MGET.
				continue
			}
			var inst registry.Instance
			if err := json.Unmarshal([]byte(raw), &inst); err != nil {
				d.log.Error("failed to unmarshal instance", "key", keys[i], "error", err)
				continue
			}
			fresh[keys[i]] = &inst
		}
	}

	d.mu.Lock()
	d.logChangesLocked(fresh)
	d.instances = fresh
	d.mu.Unlock()

	return nil
}

// scanKeys collects every key matching pattern.
func (d *Discovery) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := d.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// logChangesLocked logs the diff between the current and the fresh instance
// set; d.mu must be held.
func (d *Discovery) logChangesLocked(fresh map[string]*registry.Instance) {
	for key, inst := range fresh {
		if _, ok := d.instances[key]; !ok {
			d.log.Info("instance added", "key", key, "instance", inst.String())
		}
	}
	for key, inst := range d.instances {
		if _, ok := fresh[key]; !ok {
			d.log.Info("instance removed", "key", key, "instance", inst.String())
		}
	}
}

// GetInstances returns a snapshot of the known instances. The returned
// copies are safe to mutate.
func (d *Discovery) GetInstances() []*registry.Instance {
	d.mu.RLock()
	defer d.mu.RUnlock()

	instances := make([]*registry.Instance, 0, len(d.instances))
	for _, inst := range d.instances {
		instCopy := *inst
		instances = append(instances, &instCopy)
	}
	return instances
}

// Stop stops polling and waits for the poll goroutine, with a timeout.
func (d *Discovery) Stop() {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		d.log.Error("discovery did not stop in time")
	}
}

// Close stops polling and releases the redis client.
func (d *Discovery) Close() error {
	d.Stop()
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
