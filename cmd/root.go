package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lukman83/pricealert/config"
	"github.com/lukman83/pricealert/internal/adapters"
	"github.com/lukman83/pricealert/internal/cache"
	"github.com/lukman83/pricealert/internal/equivalence"
	"github.com/lukman83/pricealert/internal/httputil"
	"github.com/lukman83/pricealert/internal/ingest"
	"github.com/lukman83/pricealert/internal/logging"
	"github.com/lukman83/pricealert/internal/pool"
	"github.com/lukman83/pricealert/internal/search"
	"github.com/lukman83/pricealert/internal/stealth"
	"github.com/lukman83/pricealert/internal/store"
	mcpserver "github.com/lukman83/pricealert/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pricealert",
	Short: "pricealert - BRL product extraction & cross-store price CLI and MCP server",
	Long: "Extracts products and prices from Brazilian stores, finds the same product on other " +
		"stores and keeps a price history. Runs as a CLI or as an MCP server.",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("delay-profile", "", "Delay profile: off, cautious, normal, aggressive")
	rootCmd.PersistentFlags().Bool("respect-robots", true, "Respect robots.txt rules")
	rootCmd.PersistentFlags().String("proxies", "", "Comma separated proxy URLs, or @file with one per line")
	rootCmd.PersistentFlags().String("store", "", "Product store: memory, postgres")
	rootCmd.PersistentFlags().String("cache", "", "Cache backend: memory, redis")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")
}

func initConfig() {
	cfg = config.DefaultConfig()
	cfg.LoadFromEnv()

	// Override from flags
	flags := rootCmd.PersistentFlags()
	if v, _ := flags.GetString("delay-profile"); v != "" {
		cfg.DelayProfile = v
	}
	if flags.Changed("respect-robots") {
		cfg.RespectRobots, _ = flags.GetBool("respect-robots")
	}
	if v, _ := flags.GetString("proxies"); v != "" {
		cfg.Proxies = v
	}
	if v, _ := flags.GetString("store"); v != "" {
		cfg.StoreBackend = v
	}
	if v, _ := flags.GetString("cache"); v != "" {
		cfg.CacheBackend = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
}

// buildHTTPClient creates the stealth-wrapped HTTP client from config.
func buildHTTPClient() (*http.Client, error) {
	profile, err := stealth.ParseDelayProfile(cfg.DelayProfile)
	if err != nil {
		return nil, err
	}
	base := httputil.NewBaseTransport()

	var proxyRotator *stealth.ProxyRotator
	if cfg.Proxies != "" {
		var providers []stealth.ProxyProvider
		if path, ok := strings.CutPrefix(cfg.Proxies, "@"); ok {
			providers, err = stealth.LoadProxyFile(path, base)
		} else {
			providers, err = stealth.ParseProxies(cfg.Proxies, base)
		}
		if err != nil {
			return nil, err
		}
		if len(providers) > 0 {
			proxyRotator = stealth.NewProxyRotator(providers)
		}
	}

	robots := stealth.NewRobotsChecker(httputil.NewHTTPClient(base), cfg.RespectRobots)

	transport := &stealth.Transport{
		Base:        base,
		Robots:      robots,
		Fingerprint: stealth.NewFingerprintPool(),
		Proxy:       proxyRotator,
		Delay:       stealth.NewHumanDelay(profile),
		RateLimiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
	return httputil.NewHTTPClient(transport), nil
}

// services is everything a command needs, built once per process.
type services struct {
	logger   *slog.Logger
	store    store.Store
	cache    cache.Store
	fetcher  *httputil.Fetcher
	registry *adapters.Registry
	resolver *equivalence.Resolver
	names    *search.NameSearcher
	ingest   *ingest.Orchestrator

	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("shutdown", "err", err)
		}
	}
}

func (s *services) mcp() mcpserver.Services {
	return mcpserver.Services{
		Ingester: s.ingest,
		Finder:   s.resolver,
		Searcher: s.names,
	}
}

// buildServices wires the pipeline from config. Callers must Close it.
func buildServices(ctx context.Context) (*services, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	svc := &services{logger: logger}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	svc.closers = append(svc.closers, func() error { stopSweep(); return nil })

	switch cfg.CacheBackend {
	case "", "memory":
		mem := cache.NewMemory()
		go mem.TTL().Run(sweepCtx, cache.DefaultSweepInterval)
		svc.cache = mem
	case "redis":
		if cfg.RedisURL == "" {
			svc.Close()
			return nil, errors.New("redis cache needs REDIS_URL")
		}
		rc, err := cache.DialRedis(ctx, cfg.RedisURL, "pricealert:")
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.cache = rc
		svc.closers = append(svc.closers, rc.Close)
	default:
		svc.Close()
		return nil, fmt.Errorf("unknown cache backend %q (expected memory or redis)", cfg.CacheBackend)
	}

	client, err := buildHTTPClient()
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.fetcher = httputil.NewFetcher(client, svc.cache, logger)
	svc.fetcher.Timeout = cfg.FetchTimeout
	svc.registry = adapters.NewRegistry(svc.fetcher, adapters.Options{}, logger)

	domainPool := pool.New(cfg.MaxPerDomain, 0)

	var providers equivalence.Providers
	if cfg.AIConfigured() {
		providers.AI = search.NewAIProvider(search.AIConfig{
			APIKey:  cfg.AIAPIKey,
			BaseURL: cfg.AIBaseURL,
			Model:   cfg.AIModel,
		})
	}
	var serp *search.SERPProvider
	if cfg.SERPConfigured() {
		serp = search.NewSERPProvider(search.SERPConfig{
			APIKey: cfg.SERPAPIKey,
			Logger: logger,
		})
		providers.SERP = serp
	}

	opts := equivalence.DefaultOptions()
	opts.Budget = cfg.EquivBudget
	opts.MinConfidence = cfg.MinConfidence
	svc.resolver = equivalence.NewResolver(svc.registry, providers, svc.cache, domainPool, opts, logger)
	svc.names = search.NewNameSearcher(svc.fetcher, domainPool, logger)
	if serp != nil {
		svc.names.Shopping = serp
	}

	st, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.store = st
	svc.closers = append(svc.closers, st.Close)

	svc.ingest = ingest.New(ingest.Config{
		Extractor: svc.registry,
		Store:     st,
		Redirects: svc.fetcher,
		Cache:     svc.cache,
		Finder:    svc.resolver,
		Logger:    logger,
		Timeout:   cfg.IngestTimeout,
	})

	logger.Debug("services ready",
		"store", cfg.StoreBackend,
		"cache", cfg.CacheBackend,
		"ai", cfg.AIConfigured(),
		"serp", cfg.SERPConfigured(),
		"adapters", svc.registry.Names(),
	)
	return svc, nil
}
