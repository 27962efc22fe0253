package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mdkashifakram/LLMGuardian/pkg/apiserver"
	"github.com/mdkashifakram/LLMGuardian/pkg/audit"
	"github.com/mdkashifakram/LLMGuardian/pkg/cache"
	"github.com/mdkashifakram/LLMGuardian/pkg/config"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/tracing"
	"github.com/mdkashifakram/LLMGuardian/pkg/optimizer"
	"github.com/mdkashifakram/LLMGuardian/pkg/pii"
	"github.com/mdkashifakram/LLMGuardian/pkg/pipeline"
	"github.com/mdkashifakram/LLMGuardian/pkg/provider"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

func main() {
	// Parse command-line flags
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to the configuration file")
		port        = flag.Int("port", 0, "Port to listen on for the HTTP API (overrides config when set)")
		metricsPort = flag.Int("metrics-port", 0, "Port for Prometheus metrics (overrides config when set, negative disables)")
	)
	flag.Parse()

	// Initialize logging (zap) from environment.
	if _, err := logging.InitLoggerFromEnv(); err != nil {
		// Fallback to stderr since logger initialization failed
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}

	// Check if config file exists
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logging.Fatalf("Config file not found: %s", *configPath)
	}

	cfg, err := config.Parse(*configPath)
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}
	config.Replace(cfg)

	apiPort := cfg.Server.Port
	if *port > 0 {
		apiPort = *port
	}
	promPort := cfg.Server.MetricsPort
	if *metricsPort != 0 {
		promPort = *metricsPort
	}

	// Initialize distributed tracing if enabled
	ctx := context.Background()
	if cfg.Observability.Tracing.Enabled {
		tracingCfg := tracing.TracingConfig{
			Enabled:          cfg.Observability.Tracing.Enabled,
			ExporterType:     cfg.Observability.Tracing.ExporterType,
			ExporterEndpoint: cfg.Observability.Tracing.ExporterEndpoint,
			ExporterInsecure: cfg.Observability.Tracing.ExporterInsecure,
			SamplingType:     cfg.Observability.Tracing.SamplingType,
			SamplingRate:     cfg.Observability.Tracing.SamplingRate,
			ServiceName:      "llmguardian",
			ServiceVersion:   "1.0.0",
		}
		if tracingErr := tracing.InitTracing(ctx, tracingCfg); tracingErr != nil {
			logging.Warnf("Failed to initialize tracing: %v", tracingErr)
		}

		// Set up graceful shutdown for tracing
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := tracing.ShutdownTracing(shutdownCtx); shutdownErr != nil {
				logging.Errorf("Failed to shutdown tracing: %v", shutdownErr)
			}
		}()
	}

	registry, err := buildPIIRegistry(cfg)
	if err != nil {
		logging.Fatalf("Failed to build PII registry: %v", err)
	}
	detector := pii.NewDetector(registry)
	redactor := pii.NewRedactor(pii.TokenMode(cfg.PII.Redaction.TokenGeneration), cfg.PII.Redaction.TokenLength)
	restorer := pii.NewRestorer()

	opt := optimizer.New(optimizer.Config{
		Enabled:         cfg.Optimization.Enabled,
		MinPromptLength: cfg.Optimization.MinPromptLength,
		TargetReduction: cfg.Optimization.TargetReduction,
		Strategies: optimizer.Strategies{
			RemoveRedundancy:   cfg.Optimization.Strategies.RemoveRedundancy,
			RemoveFillerWords:  cfg.Optimization.Strategies.RemoveFillerWords,
			SimplifyLanguage:   cfg.Optimization.Strategies.SimplifyLanguage,
			CompressWhitespace: cfg.Optimization.Strategies.CompressWhitespace,
		},
		Stopwords: optimizer.Stopwords{
			Enabled:     cfg.Optimization.Stopwords.Enabled,
			CustomWords: cfg.Optimization.Stopwords.CustomWords,
		},
	})

	models := routing.NewRegistry(modelProfiles(cfg))
	strategy, ok := routing.ParseStrategy(cfg.Routing.DefaultStrategy)
	if !ok {
		logging.Warnf("Unknown routing strategy %q, using complexity", cfg.Routing.DefaultStrategy)
		strategy = routing.StrategyComplexity
	}
	router := routing.NewRouter(models, strategy)

	manager := cache.NewManager(
		cache.NewKeyGenerator(cfg.Cache.L2.KeyPrefix),
		cache.NewMemoryTier(cfg.Cache.L1.MaxSize, time.Duration(cfg.Cache.L1.TTLMinutes)*time.Minute),
		cache.NewRedisTier(cache.RedisTierOptions{
			Enabled:   cfg.Cache.L2.Enabled,
			Addr:      cfg.Cache.L2.Address,
			Username:  cfg.Cache.L2.Username,
			Password:  cfg.Cache.L2.Password,
			DB:        cfg.Cache.L2.DB,
			PoolSize:  cfg.Cache.L2.PoolSize,
			TTL:       time.Duration(cfg.Cache.L2.TTLMinutes) * time.Minute,
			KeyPrefix: cfg.Cache.L2.KeyPrefix,
		}),
	)

	upstream := provider.NewOpenAIProvider(provider.Options{
		APIKey:               cfg.Provider.OpenAI.ResolvedAPIKey(),
		OrganizationID:       cfg.Provider.OpenAI.OrganizationID,
		BaseURL:              cfg.Provider.OpenAI.BaseURL,
		Timeout:              time.Duration(cfg.Provider.OpenAI.TimeoutSeconds) * time.Second,
		MaxRetries:           cfg.Provider.OpenAI.MaxRetries,
		RetryDelay:           time.Duration(cfg.Provider.OpenAI.RetryDelayMs) * time.Millisecond,
		MaxRequestsPerMinute: cfg.Provider.OpenAI.MaxRequestsPerMinute,
		MaxIdleConns:         cfg.Provider.OpenAI.MaxIdleConns,
		MaxIdleConnsPerHost:  cfg.Provider.OpenAI.MaxIdleConnsPerHost,
	}, models)

	level, ok := audit.ParseLevel(cfg.PII.Audit.Level)
	if !ok {
		logging.Warnf("Unknown audit level %q, using standard", cfg.PII.Audit.Level)
	}
	var store *audit.Store
	if cfg.PII.Audit.Enabled && level != audit.LevelNone {
		store, err = audit.OpenStore(cfg.PII.Audit.DBPath)
		if err != nil {
			logging.Fatalf("Failed to open audit store: %v", err)
		}
	}
	sink := audit.NewSink(store, audit.SinkOptions{
		Enabled:       cfg.PII.Audit.Enabled,
		Level:         level,
		QueueSize:     cfg.PII.Audit.QueueSize,
		Workers:       cfg.PII.Audit.Workers,
		RetentionDays: cfg.PII.Audit.RetentionDays,
	})

	processor := pipeline.NewProcessor(pipeline.Options{
		Detector:  detector,
		Redactor:  redactor,
		Restorer:  restorer,
		Optimizer: opt,
		Router:    router,
		Cache:     manager,
		Provider:  upstream,
		Audit:     sink,
	})

	server := apiserver.New(apiserver.Options{
		Processor:    processor,
		Cache:        manager,
		Audit:        store,
		Models:       models,
		Provider:     upstream,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	})

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logging.Infof("Received shutdown signal, draining in-flight requests...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logging.Errorf("Failed to shutdown API server: %v", shutdownErr)
		}
	}()

	// Start metrics server if enabled
	metricsEnabled := cfg.Observability.MetricsEnabled()
	if promPort <= 0 {
		metricsEnabled = false
	}
	if metricsEnabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			metricsAddr := fmt.Sprintf(":%d", promPort)
			logging.Infof("Starting metrics server on %s", metricsAddr)
			if metricsErr := http.ListenAndServe(metricsAddr, nil); metricsErr != nil {
				logging.Errorf("Metrics server error: %v", metricsErr)
			}
		}()
	} else {
		logging.Infof("Metrics server disabled")
	}

	// Reload configuration when the file changes
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go config.Watch(watchCtx, *configPath)

	logging.Infof("Starting LLMGuardian gateway with config: %s", *configPath)
	if err := server.Start(apiPort); err != nil {
		logging.Fatalf("API server error: %v", err)
	}

	// Start returned after a graceful shutdown; flush the async pieces.
	sink.Close()
	if store != nil {
		if closeErr := store.Close(); closeErr != nil {
			logging.Errorf("Failed to close audit store: %v", closeErr)
		}
	}
	if closeErr := manager.Close(); closeErr != nil {
		logging.Errorf("Failed to close cache: %v", closeErr)
	}
	logging.Infof("Shutdown complete")
}

// buildPIIRegistry compiles the detection patterns from config. When
// detection is disabled every built-in kind is turned off so the pipeline
// runs with an empty registry instead of a nil detector.
func buildPIIRegistry(cfg *config.Config) (*pii.Registry, error) {
	det := cfg.PII.Detection
	overrides := make(map[string]bool, len(det.Patterns))
	var custom []pii.CustomPattern
	if det.Enabled {
		for kind, on := range det.Patterns {
			overrides[kind] = on
		}
		for _, cp := range det.CustomPatterns {
			custom = append(custom, pii.CustomPattern{
				Name:    cp.Name,
				Regex:   cp.Regex,
				Region:  cp.Region,
				Enabled: cp.Enabled,
			})
		}
	} else {
		for _, kind := range pii.BuiltinKinds() {
			overrides[kind] = false
		}
	}
	return pii.NewRegistry(overrides, custom)
}

// modelProfiles converts the configured model list; an empty list keeps the
// registry's built-in set.
func modelProfiles(cfg *config.Config) []routing.Profile {
	profiles := make([]routing.Profile, 0, len(cfg.Routing.Models))
	for _, m := range cfg.Routing.Models {
		profiles = append(profiles, routing.Profile{
			ModelID:          m.ModelID,
			DisplayName:      m.DisplayName,
			Provider:         m.Provider,
			InputCostPer1K:   m.InputCostPer1K,
			OutputCostPer1K:  m.OutputCostPer1K,
			MaxContextTokens: m.MaxContextTokens,
			Capability:       routing.Capability(m.Capability),
			Enabled:          m.Enabled,
		})
	}
	return profiles
}
