// Command resolvectl is a CLI front-end for the async DNS resolver
// facade: resolve a single hostname, or fan a batch of hostnames read
// from stdin out concurrently.
//
// Usage:
//
//	resolvectl resolve <hostname> [--timeout dur] [--upstream host:port]
//	resolvectl serve [--upstream host:port]
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-core/resolve/internal/config"
	"github.com/nvr-core/resolve/internal/domain"
	"github.com/nvr-core/resolve/internal/dnsresolver"
	"github.com/nvr-core/resolve/pkg/logger"
	"github.com/nvr-core/resolve/pkg/resolveclient"
)

func main() {
	cfg, err := config.New().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolvectl: config error: %v\n", err)
		os.Exit(1)
	}

	var upstreamFlag string
	var timeoutFlag time.Duration

	root := &cobra.Command{
		Use:   "resolvectl",
		Short: "Async DNS stub resolver CLI",
	}
	root.PersistentFlags().StringVar(&upstreamFlag, "upstream", cfg.Resolver.Upstream, "upstream DNS server (host:port)")
	root.PersistentFlags().DurationVar(&timeoutFlag, "timeout", cfg.Resolver.DefaultTimeout, "per-lookup timeout")

	resolveCmd := &cobra.Command{
		Use:   "resolve <hostname>",
		Short: "Resolve one hostname to an IPv4 address",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runResolve(cfg, upstreamFlag, timeoutFlag, args[0])
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Resolve a batch of hostnames read from stdin, one per line, concurrently",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(cfg, upstreamFlag, timeoutFlag)
		},
	}

	root.AddCommand(resolveCmd, serveCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newResolver(cfg *config.Config, upstreamOverride string) (*dnsresolver.Resolver, error) {
	upstream, err := domain.ParseAddr(upstreamOverride)
	if err != nil {
		return nil, fmt.Errorf("resolvectl: %w", err)
	}
	log := logger.Setup(cfg.CLI.LogLevel, false)
	return dnsresolver.New(dnsresolver.WithUpstream(upstream), dnsresolver.WithLogger(log)), nil
}

func runResolve(cfg *config.Config, upstream string, timeout time.Duration, hostname string) error {
	resolver, err := newResolver(cfg, upstream)
	if err != nil {
		return err
	}
	defer resolver.Shutdown()

	client := resolveclient.New(resolver, resolveclient.WithTimeout(timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ip, err := client.LookupHost(ctx, hostname)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", hostname, err)
	}
	fmt.Println(ip.String())
	return nil
}

// runServe reads hostnames from stdin and resolves them concurrently,
// one goroutine per line, using golang.org/x/sync/errgroup to fan out
// and github.com/google/uuid to mint a distinct opaque caller handle
// per in-flight lookup. Talking to the facade directly (rather than
// through pkg/resolveclient) is deliberate here: it demonstrates the
// facade's caller-key contract with a real-world token type instead
// of resolveclient's internal counter, with every line's lookup
// sharing the one registry and worker.
func runServe(cfg *config.Config, upstream string, timeout time.Duration) error {
	resolver, err := newResolver(cfg, upstream)
	if err != nil {
		return err
	}
	defer resolver.Shutdown()

	grp, _ := errgroup.WithContext(context.Background())
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		hostname := scanner.Text()
		if hostname == "" {
			continue
		}
		grp.Go(func() error {
			caller := uuid.New()
			done := make(chan struct {
				result domain.Result
				ipv4   uint32
			}, 1)

			err := resolver.Resolve(caller, hostname, uint32(timeout.Milliseconds()), dnsresolver.CompleterFunc(
				func(result domain.Result, ipv4 uint32) {
					done <- struct {
						result domain.Result
						ipv4   uint32
					}{result, ipv4}
				}))
			if err != nil {
				fmt.Printf("%s\terror: %v (caller %s)\n", hostname, err, caller)
				return nil
			}

			res := <-done
			if res.result != domain.OK {
				fmt.Printf("%s\t%s (caller %s)\n", hostname, res.result, caller)
				return nil
			}
			fmt.Printf("%s\t%d.%d.%d.%d\n", hostname,
				byte(res.ipv4>>24), byte(res.ipv4>>16), byte(res.ipv4>>8), byte(res.ipv4))
			return nil
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("resolvectl: reading stdin: %w", err)
	}
	return grp.Wait()
}
