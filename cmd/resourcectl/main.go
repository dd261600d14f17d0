package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentuity/go-resource/env"
	"github.com/agentuity/go-resource/resilience"
	"github.com/agentuity/go-resource/resource"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

const serviceName = "resourcectl"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var a *app
	var shutdown func()

	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Load, refresh and invalidate cached connections served from a fixture",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := env.NewLogger(cmd)

			fixtureFile, _ := cmd.Flags().GetString("fixture")
			fixture, err := loadFixture(fixtureFile)
			if err != nil {
				return err
			}
			ttl, err := durationFlag(cmd, "ttl")
			if err != nil {
				return err
			}
			breaker := resilience.DefaultCircuitBreakerConfig()
			breaker.MaxFailures, _ = cmd.Flags().GetInt("breaker-failures")
			if breaker.Timeout, err = durationFlag(cmd, "breaker-timeout"); err != nil {
				return err
			}
			parallel, _ := cmd.Flags().GetInt("parallel")
			activity, _ := cmd.Flags().GetBool("activity")

			provider, stop, err := env.NewTracing(ctx, cmd, serviceName)
			if err != nil {
				return err
			}
			shutdown = stop
			client, err := env.NewRedis(ctx, cmd)
			if err != nil {
				return err
			}
			cfg := appConfig{
				fixture:  fixture,
				logger:   log,
				tracer:   provider.Tracer(serviceName),
				ttl:      ttl,
				breaker:  breaker,
				parallel: parallel,
				activity: activity,
			}
			if client != nil {
				cfg.redis = client
			}
			a, err = newApp(ctx, cfg)
			if err != nil {
				if client != nil {
					client.Close()
				}
				shutdown()
				return err
			}
			if client != nil {
				a.closers = append([]func() error{client.Close}, a.closers...)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			defer func() {
				if shutdown != nil {
					shutdown()
				}
			}()
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("fixture", "fixture.yaml", "YAML file the simulated backend serves from")
	flags.String("redis", "", "Redis url for the shared store and invalidation, env "+env.EnvRedisURL)
	flags.String("log-level", "", "trace, debug, info, warn or error")
	flags.String("log-format", "console", "console or json")
	flags.String("otlp-url", "", "OTLP/HTTP collector url, env "+env.EnvOTLPURL)
	flags.String("otlp-secret", "", "OTLP shared secret, env "+env.EnvOTLPSecret)
	flags.String("ttl", "5m", "shared store TTL")
	flags.Int("breaker-failures", 5, "consecutive backend failures that open the circuit")
	flags.String("breaker-timeout", "30s", "how long an open circuit rejects loads")
	flags.Int("parallel", 4, "concurrent node listings per load")
	flags.Bool("activity", false, "trace every resource event")

	// commands resolve the app lazily, it is built in PersistentPreRunE
	current := func() *app { return a }
	root.AddCommand(
		newLoadCommand(current, false),
		newLoadCommand(current, true),
		newOutdateCommand(current),
		newRenameCommand(current),
		newWatchCommand(current),
		newBenchCommand(current),
	)
	return root
}

func durationFlag(cmd *cobra.Command, name string) (time.Duration, error) {
	val, _ := cmd.Flags().GetString(name)
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid --%s", name)
	}
	return d, nil
}

// keyFromArgs addresses the given connection ids, or every connection.
func keyFromArgs(args []string) resource.Key[string] {
	if len(args) == 0 {
		return resource.AllKey[string]()
	}
	return resource.List(args...)
}

type view struct {
	Connections []Connection      `yaml:"connections"`
	Nodes       map[string][]Node `yaml:"nodes,omitempty"`
}

func newLoadCommand(app func() *app, refresh bool) *cobra.Command {
	use, short := "load [connection...]", "Load connections unless they are cached and fresh"
	if refresh {
		use, short = "refresh [connection...]", "Reload connections from the backend"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			key := keyFromArgs(args)
			var includes []string
			if stats, _ := cmd.Flags().GetBool("stats"); stats {
				includes = append(includes, includeStats)
			}
			load := a.connections.Load
			if refresh {
				load = a.connections.Refresh
			}
			connections, err := load(ctx, key, includes...)
			if err != nil {
				return err
			}
			out := view{Connections: connections}
			if withNodes, _ := cmd.Flags().GetBool("nodes"); withNodes {
				if _, err := a.nodes.Load(ctx, key); err != nil {
					return err
				}
				out.Nodes = make(map[string][]Node)
				for _, id := range a.nodes.Transform(key).Keys() {
					out.Nodes[id], _ = a.nodes.Get(id)
				}
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}
	cmd.Flags().Bool("stats", false, "request connection statistics")
	cmd.Flags().Bool("nodes", false, "also list the nodes of each connection")
	return cmd
}

func newOutdateCommand(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outdate [connection...]",
		Short: "Mark connections outdated here and in every process sharing --redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			var key resource.Key[string]
			if len(args) > 0 {
				key = resource.List(args...)
			}
			if err := a.invalidate(cmd.Context(), key); err != nil {
				return err
			}
			if key.IsZero() {
				fmt.Fprintln(cmd.OutOrStdout(), "marked all connections outdated")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "marked %d connections outdated\n", key.Len())
			}
			return nil
		},
	}
}

func newRenameCommand(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <connection> <name>",
		Short: "Rename a connection on the backend and update the cached copy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := app().rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(conn)
		},
	}
}

func newWatchCommand(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep every connection loaded and report invalidations until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			outdated := make(chan resource.Key[string], 16)
			stop := a.connections.Watch(func(c resource.Change[resource.Key[string]]) {
				if c.Kind != resource.ChangeOutdated || a.connections.IsDataLoading(c.Key) {
					return
				}
				select {
				case outdated <- c.Key:
				default:
				}
			})
			defer stop()

			for {
				if _, err := a.connections.Load(ctx, resource.AllKey[string]()); err != nil {
					a.logger.Error("failed to load connections: %s", err)
				} else {
					fmt.Fprintf(out, "%d connections loaded\n", a.connections.Len())
				}
				select {
				case <-ctx.Done():
					return nil
				case key := <-outdated:
					fmt.Fprintf(out, "outdated %s\n", key)
				}
			}
		},
	}
}

func newBenchCommand(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load every connection and its nodes from many goroutines at once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			rounds, _ := cmd.Flags().GetInt("rounds")
			res, err := bench(cmd.Context(), app(), concurrency, rounds)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(res)
		},
	}
	cmd.Flags().Int("concurrency", 16, "goroutines per round")
	cmd.Flags().Int("rounds", 3, "rounds, everything is marked outdated between rounds")
	return cmd
}
