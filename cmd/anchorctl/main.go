// anchorctl inspects and exercises registry configuration files: validate
// and dump configs, query live instances, and run the status server.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nautkit/anchor/pkg/api"
	"github.com/nautkit/anchor/pkg/config"
	"github.com/nautkit/anchor/pkg/endpoint"
	"github.com/nautkit/anchor/pkg/registry"
	"github.com/nautkit/anchor/pkg/registry/factory"
	"github.com/nautkit/anchor/pkg/xlog"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "anchorctl",
	Short: "Anchor service registry toolkit",
	Long:  `Inspect registry configuration files and the registries they point at`,
}

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a configuration file",
	Long:  `Load a configuration file and validate the service section and every registry endpoint`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		file, err := config.LoadFile(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if err := file.Validate(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		valid := file.ValidRegistries()
		fmt.Printf("%s: OK (%d of %d registries participate)\n",
			args[0], len(valid), len(file.Registries))
		for _, name := range sortedNames(file.Registries) {
			cfg := file.Registries[name]
			state := "skipped (no address)"
			if cfg != nil && cfg.IsValid() {
				state = cfg.ProtocolOrDefault() + " " + cfg.Address
			}
			fmt.Printf("  %-12s %s\n", name, state)
		}
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump [config-file]",
	Short: "Print the materialized configuration",
	Long:  `Load a configuration file, apply address materialization and print the result`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		file, err := config.LoadFile(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		data, err := config.Encode(file, config.Format(format))
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	},
}

var instancesCmd = &cobra.Command{
	Use:   "instances [config-file] [service-name]",
	Short: "List the live instances of a service",
	Long:  `Query every subscribable registry in the configuration file and print the merged instance list`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		file, err := config.LoadFile(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		serviceName := args[1]

		log := xlog.MustNew(xlog.Config{Output: "stderr", Level: "warn"})
		defer log.Close()

		instances, err := collectInstances(cmd.Context(), log, file, serviceName)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		if len(instances) == 0 {
			fmt.Printf("no instances of '%s'\n", serviceName)
			return
		}
		for _, inst := range instances {
			fmt.Printf("%-24s %s\n", inst.HostPort(), inst)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [config-file]",
	Short: "Run the status server",
	Long:  `Serve the registry introspection HTTP API, optionally registering this process as a service instance`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")
		registerAddr, _ := cmd.Flags().GetString("register")

		file, err := config.LoadFile(args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		log := xlog.MustNew(file.Logger)
		defer log.Close()

		if registerAddr != "" {
			unregister, err := registerInstance(log, file, registerAddr)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			defer unregister()
		}

		serverCfg := file.API
		if cmd.Flags().Changed("port") || serverCfg.Port == 0 {
			serverCfg.Port = port
		}
		if cmd.Flags().Changed("host") || serverCfg.Host == "" {
			serverCfg.Host = host
		}

		ctx := xlog.WithContext(context.Background(), log)
		server := api.NewServer(ctx, &serverCfg)
		api.Register(server.Engine(), api.NewStatusHandler(log, file.Registries))

		if err := server.Start(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("anchorctl version %s\n", version)
	},
}

// collectInstances fans out across the subscribable registries and merges
// the results by registration key.
func collectInstances(ctx context.Context, log *xlog.Logger, file *config.File, serviceName string) ([]*registry.Instance, error) {
	var (
		mu     sync.Mutex
		merged = make(map[string]*registry.Instance)
	)

	g, ctx := errgroup.WithContext(ctx)
	for name, cfg := range file.ValidRegistries() {
		if !cfg.SubscribeEnabled() {
			continue
		}
		g.Go(func() error {
			discovery, err := factory.NewDiscovery(log, cfg)
			if err != nil {
				return fmt.Errorf("registry %s: %w", name, err)
			}
			defer discovery.Close()

			if err := discovery.Watch(ctx, serviceName); err != nil {
				return fmt.Errorf("registry %s: %w", name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, inst := range discovery.GetInstances() {
				merged[inst.Key()] = inst
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	instances := make([]*registry.Instance, 0, len(merged))
	for _, inst := range merged {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].HostPort() < instances[j].HostPort()
	})
	return instances, nil
}

// registerInstance registers addr with every registry that has registration
// enabled and returns a function that unregisters from all of them.
func registerInstance(log *xlog.Logger, file *config.File, addr string) (func(), error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}

	var registrars []registry.Registrar
	for name, cfg := range file.ValidRegistries() {
		if !cfg.RegisterEnabled() {
			continue
		}
		instance, err := registry.NewInstance(&file.Service, cfg, host, port)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", name, err)
		}
		registrar, err := factory.NewRegistrar(log, cfg, instance)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", name, err)
		}
		registrars = append(registrars, registrar)
	}

	for _, r := range registrars {
		r.Register()
	}
	return func() {
		for _, r := range registrars {
			r.Unregister()
		}
	}, nil
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx <= 0 {
		return "", 0, fmt.Errorf("invalid address %q, want host:port", addr)
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid port in %q", addr)
	}
	return addr[:idx], port, nil
}

func sortedNames(registries map[string]*endpoint.Config) []string {
	names := make([]string, 0, len(registries))
	for name := range registries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	dumpCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml / json / toml")

	serveCmd.Flags().IntP("port", "p", 8080, "Status server port")
	serveCmd.Flags().String("host", "0.0.0.0", "Status server listen address")
	serveCmd.Flags().String("register", "", "Register this host:port as a service instance while serving")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(instancesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
