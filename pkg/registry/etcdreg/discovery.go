package etcdreg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/xlog"
)

// Discovery watches the instances of one service in etcd. It implements
// registry.Discovery.
//
// When the endpoint configures a cache file, the discovered instance list is
// persisted there on every change and restored at startup, so consumers keep
// a usable address list across restarts even when the registry is briefly
// unavailable.
type Discovery struct {
	log    *xlog.Logger
	client *clientv3.Client

	group     string
	cacheFile string

	serviceName string
	instances   map[string]*registry.Instance
	mu          sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDiscovery creates a Discovery against the given endpoint. It returns
// registry.ErrSubscribeDisabled when the endpoint is register-only.
func NewDiscovery(log *xlog.Logger, cfg *endpoint.Config, client *clientv3.Client) (*Discovery, error) {
	if !cfg.SubscribeEnabled() {
		return nil, registry.ErrSubscribeDisabled
	}

	return &Discovery{
		log:       log,
		client:    client,
		group:     cfg.Group,
		cacheFile: cfg.File,
		instances: make(map[string]*registry.Instance),
	}, nil
}

// Watch loads the current instances of serviceName and starts watching for
// changes. When a cache file is configured, a previous snapshot is restored
// first and a failed initial load degrades to the snapshot instead of
// failing.
func (d *Discovery) Watch(ctx context.Context, serviceName string) error {
	if serviceName == "" {
		return fmt.Errorf("service name is required")
	}

	d.serviceName = serviceName
	prefix := registry.ServicePrefix(serviceName, d.group)

	restored := d.restoreSnapshot()

	if err := d.loadInstances(ctx, prefix); err != nil {
		if !restored {
			return fmt.Errorf("failed to load instances: %w", err)
		}
		d.log.Warn("initial load failed, serving restored snapshot", "error", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watchChanges(watchCtx, prefix)
	}()

	return nil
}

// loadInstances fetches the instances currently registered under prefix.
func (d *Discovery) loadInstances(ctx context.Context, prefix string) error {
	resp, err := d.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.instances = make(map[string]*registry.Instance, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst registry.Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			d.log.Error("failed to unmarshal instance", "key", string(kv.Key), "error", err)
			continue
		}
		d.instances[string(kv.Key)] = &inst
		d.log.Info("loaded instance", "key", string(kv.Key), "instance", inst.String())
	}

	d.saveSnapshotLocked()
	return nil
}

// watchChanges watches prefix with automatic reconnect and exponential
// backoff.
func (d *Discovery) watchChanges(ctx context.Context, prefix string) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			d.log.Info("watch stopped", "error", ctx.Err())
			return
		default:
		}

		err := d.watchSingle(ctx, prefix)
		if err == nil {
			backoff = time.Second
			continue
		}

		d.log.Error("watch error, retrying", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-ctx.Done():
			return
		}
	}
}

// watchSingle runs one watch stream until it fails or the context ends.
func (d *Discovery) watchSingle(ctx context.Context, prefix string) error {
	watchChan := d.client.Watch(ctx, prefix, clientv3.WithPrefix())

	for watchResp := range watchChan {
		if watchResp.Canceled {
			return fmt.Errorf("watch was canceled")
		}
		if err := watchResp.Err(); err != nil {
			return fmt.Errorf("watch error: %w", err)
		}

		d.mu.Lock()
		for _, event := range watchResp.Events {
			key := string(event.Kv.Key)
			switch event.Type {
			case mvccpb.PUT:
				var inst registry.Instance
				if err := json.Unmarshal(event.Kv.Value, &inst); err != nil {
					d.log.Error("failed to unmarshal instance", "key", key, "error", err)
					continue
				}
				d.instances[key] = &inst
				d.log.Info("instance updated", "key", key, "instance", inst.String())

			case mvccpb.DELETE:
				if inst, ok := d.instances[key]; ok {
					d.log.Info("instance removed", "key", key, "instance", inst.String())
					delete(d.instances, key)
				}
			}
		}
		d.saveSnapshotLocked()
		d.mu.Unlock()
	}

	return fmt.Errorf("watch channel closed")
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

// restoreSnapshot loads the cached instance list from the endpoint's cache
// file, reporting whether anything was restored.
func (d *Discovery) restoreSnapshot() bool {
	if d.cacheFile == "" {
		return false
	}

	instances, err := loadSnapshot(d.cacheFile)
	if err != nil {
		d.log.Warn("failed to restore instance snapshot", "file", d.cacheFile, "error", err)
		return false
	}
	if len(instances) == 0 {
		return false
	}

	d.mu.Lock()
	d.instances = instances
	d.mu.Unlock()

	d.log.Info("restored instance snapshot", "file", d.cacheFile, "count", len(instances))
	return true
}

// saveSnapshotLocked persists the instance list; d.mu must be held.
func (d *Discovery) saveSnapshotLocked() {
	if d.cacheFile == "" {
		return
	}
	if err := saveSnapshot(d.cacheFile, d.instances); err != nil {
		d.log.Warn("failed to save instance snapshot", "file", d.cacheFile, "error", err)
	}
}

// Stop stops watching and waits for the watch goroutine, with a timeout.
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

// Close stops watching and releases the etcd client.
func (d *Discovery) Close() error {
	d.Stop()
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
