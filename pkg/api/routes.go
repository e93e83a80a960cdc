package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/registry/factory"
	"github.com/nautkit/anchor/pkg/xlog"
)

// RouterRegistrar is the route registration contract. Handlers implement it
// to register their own routes on the engine.
type RouterRegistrar interface {
	RegisterRoutes(engine *gin.Engine)
}

// Register registers multiple RouterRegistrars.
func Register(engine *gin.Engine, registrars ...RouterRegistrar) {
	for _, r := range registrars {
		if r == nil {
			continue
		}
		r.RegisterRoutes(engine)
	}
}

// instanceLookupTimeout bounds a single discovery read behind the instances
// endpoint.
const instanceLookupTimeout = 10 * time.Second

// StatusHandler serves the registry introspection routes over a set of named
// registry endpoints.
type StatusHandler struct {
	log        *xlog.Logger
	registries map[string]*endpoint.Config

	// newDiscovery is swapped by tests.
	newDiscovery func(*xlog.Logger, *endpoint.Config) (registry.Discovery, error)
}

// NewStatusHandler creates the introspection handler for the given
// registries, keyed by their configured name.
func NewStatusHandler(log *xlog.Logger, registries map[string]*endpoint.Config) *StatusHandler {
	return &StatusHandler{
		log:          log,
		registries:   registries,
		newDiscovery: factory.NewDiscovery,
	}
}

// RegisterRoutes implements RouterRegistrar.
func (h *StatusHandler) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", h.healthz)
	engine.GET("/registries", h.listRegistries)
	engine.GET("/services/:name/instances", h.listInstances)
}

func (h *StatusHandler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// registryView is the JSON shape of one configured registry.
type registryView struct {
	Name         string `json:"name"`
	Protocol     string `json:"protocol"`
	Address      string `json:"address"`
	Group        string `json:"group,omitempty"`
	Zone         string `json:"zone,omitempty"`
	Valid        bool   `json:"valid"`
	Register     bool   `json:"register"`
	Subscribe    bool   `json:"subscribe"`
	HealthChecks bool   `json:"healthChecks"`
}

func (h *StatusHandler) listRegistries(c *gin.Context) {
	views := make([]registryView, 0, len(h.registries))
	for name, cfg := range h.registries {
		if cfg == nil {
			continue
		}
		views = append(views, registryView{
			Name:         name,
			Protocol:     cfg.ProtocolOrDefault(),
			Address:      cfg.Address,
			Group:        cfg.Group,
			Zone:         cfg.Zone,
			Valid:        cfg.IsValid(),
			Register:     cfg.RegisterEnabled(),
			Subscribe:    cfg.SubscribeEnabled(),
			HealthChecks: cfg.CheckEnabled(),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

	c.JSON(http.StatusOK, gin.H{"registries": views})
}

// listInstances reads the current instances of a service. The registry is
// selected with ?registry=<name>; without it every subscribable registry is
// queried and the results merged.
func (h *StatusHandler) listInstances(c *gin.Context) {
	serviceName := c.Param("name")

	selected := make(map[string]*endpoint.Config)
	if wanted := c.Query("registry"); wanted != "" {
		cfg := h.registries[wanted]
		if cfg == nil || !cfg.IsValid() {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "unknown registry: " + wanted,
			})
			return
		}
		selected[wanted] = cfg
	} else {
		for name, cfg := range h.registries {
			if cfg != nil && cfg.IsValid() {
				selected[name] = cfg
			}
		}
	}

	merged := make(map[string]*registry.Instance)
	for name, cfg := range selected {
		if !cfg.SubscribeEnabled() {
			continue
		}
		instances, err := h.readInstances(c, cfg, serviceName)
		if err != nil {
			h.log.Warn("failed to read instances",
				"registry", name,
				"service", serviceName,
				"error", err,
			)
			continue
		}
		for _, inst := range instances {
			merged[inst.Key()] = inst
		}
	}

	instances := make([]*registry.Instance, 0, len(merged))
	for _, inst := range merged {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].HostPort() < instances[j].HostPort()
	})

	c.JSON(http.StatusOK, gin.H{
		"service":   serviceName,
		"instances": instances,
	})
}

// readInstances opens a short-lived discovery, reads the snapshot and
// releases it.
func (h *StatusHandler) readInstances(c *gin.Context, cfg *endpoint.Config, serviceName string) ([]*registry.Instance, error) {
	discovery, err := h.newDiscovery(h.log, cfg)
	if err != nil {
		return nil, err
	}
	defer discovery.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), instanceLookupTimeout)
	defer cancel()

	if err := discovery.Watch(ctx, serviceName); err != nil {
		return nil, err
	}
	return discovery.GetInstances(), nil
}
