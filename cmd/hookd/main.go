package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cbwinslow/crawl4ai/internal/api"
	"github.com/cbwinslow/crawl4ai/internal/archive"
	"github.com/cbwinslow/crawl4ai/internal/config"
	"github.com/cbwinslow/crawl4ai/internal/crawl"
	"github.com/cbwinslow/crawl4ai/internal/dispatch"
	"github.com/cbwinslow/crawl4ai/internal/domain"
	"github.com/cbwinslow/crawl4ai/internal/github"
	"github.com/cbwinslow/crawl4ai/internal/leaderelection"
	"github.com/cbwinslow/crawl4ai/internal/metrics"
	"github.com/cbwinslow/crawl4ai/internal/pipeline"
	"github.com/cbwinslow/crawl4ai/internal/ratelimit"
	"github.com/cbwinslow/crawl4ai/internal/recorder"
	"github.com/cbwinslow/crawl4ai/internal/retention"
	"github.com/cbwinslow/crawl4ai/internal/retry"
	"github.com/cbwinslow/crawl4ai/internal/store/memory"
	"github.com/cbwinslow/crawl4ai/internal/store/postgres"
	"github.com/cbwinslow/crawl4ai/internal/validation"

	_ "github.com/lib/pq"
)

// deliveryStore is the store surface the service needs; both the Postgres
// and the in-memory implementations satisfy it.
type deliveryStore interface {
	UpsertDelivery(ctx context.Context, d domain.Delivery) error
	AppendTransition(ctx context.Context, tr domain.Transition) error
	ListDeliveries(ctx context.Context, limit, offset int) ([]domain.Delivery, error)
	ListTransitions(ctx context.Context, deliveryID string, limit, offset int) ([]domain.Transition, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`hookd - webhook ingestion and dispatch service

Usage:
  hookd <command>

Commands:
  serve      Start the webhook server
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  WEBHOOK_SECRET            HMAC secret for signature verification (required)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  DATABASE_URL              PostgreSQL connection string (optional; in-memory store when unset)
  REDIS_ADDR                Redis address for shared rate limiting (optional)

  RATE_LIMIT_POINTS         Request budget per window (default: "100")
  RATE_LIMIT_WINDOW         Rate limit window length (default: "60s")
  RATE_LIMIT_BLOCK          Block duration after budget exhaustion (default: "15m")

  RETRY_MAX_ATTEMPTS        Handler attempts per delivery (default: "3")
  RETRY_BASE_DELAY          First retry backoff, doubles per attempt (default: "1s")

  REQUEST_TIMEOUT           End-to-end deadline per delivery (default: "30s")
  MAX_BODY_BYTES            Request body cap in bytes (default: "1048576")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_ADDR              Metrics server address (default: ":9090")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  VALIDATION_SCHEMA_FILE    YAML file overriding the built-in payload schemas (optional)
  GITHUB_API_URL            API base URL for posting comments (default: "https://api.github.com")
  GITHUB_TOKEN              API token; comments are logged only when unset (optional)
  CRAWLER_BIN               Crawler binary invoked on push events (optional)

  ARCHIVE_BUCKET            S3 bucket for payload archiving (optional)
  ARCHIVE_REGION            S3 region (required with ARCHIVE_BUCKET)
  ARCHIVE_BUFFER_SIZE       Archive queue capacity (default: "256")
  ARCHIVE_MAX_RETRIES       Upload attempts per payload (default: "5")

  RETENTION_ENABLED         Enable the delivery retention sweeper (default: "false")
  RETENTION_SCHEDULE        Cron expression for prune runs (default: "0 3 * * *")
  RETENTION_MAX_AGE         Delivery record retention age (default: "720h")
  LEADER_LOCK_KEY           Advisory lock key shared by all replicas (default: "842917")
  LEADER_RETRY_INTERVAL     Follower lock retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection ping interval (default: "2s")`)
}

// logConfigWarnings flags configuration combinations that are valid but
// operationally risky. Warnings are advisory; startup proceeds.
func logConfigWarnings(cfg *config.Config) {
	if cfg.DatabaseURL == "" {
		log.Println("WARNING [P0]: DATABASE_URL not set. Delivery records are kept in memory and lost on restart.")
	}
	if cfg.RedisAddr == "" {
		log.Println("WARNING [P1]: REDIS_ADDR not set. Rate limit budgets are per-process; running multiple replicas multiplies every client's effective budget.")
	}
	if !cfg.MetricsEnabled {
		log.Println("WARNING [P1]: METRICS_ENABLED=false. No Prometheus metrics will be exported; the only visibility is the snapshot embedded in webhook responses.")
	}
	if cfg.DatabaseURL != "" && !cfg.RetentionEnabled {
		log.Println("INFO: RETENTION_ENABLED=false. Delivery tables grow without bound; enable retention or prune externally.")
	}
	if cfg.GitHubToken == "" {
		log.Println("INFO: GITHUB_TOKEN not set. Issue and pull request comments are logged, not posted.")
	}
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	// Store: Postgres when configured, otherwise in-memory.
	var store deliveryStore
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

		log.Printf("hookd: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
			cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}
		store = postgres.New(db, cfg.DBOpTimeout)
	} else {
		log.Println("hookd: DATABASE_URL not set; delivery records kept in memory only")
		store = memory.New()
	}

	// Rate limiter: Redis shares budgets across replicas.
	policy := ratelimit.Policy{
		Points:        cfg.RateLimitPoints,
		Window:        cfg.RateLimitWindow,
		BlockDuration: cfg.RateLimitBlock,
	}
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(redisClient, policy)
		log.Printf("hookd: rate limiting via redis (addr=%s)", cfg.RedisAddr)
	} else {
		limiter = ratelimit.NewMemoryLimiter(policy)
		log.Println("hookd: REDIS_ADDR not set; rate limiting is per-process")
	}

	// Payload validator, with optional schema file override.
	validator := validation.New()
	if cfg.ValidationSchemaFile != "" {
		schemas, err := validation.LoadSchemas(cfg.ValidationSchemaFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load schema file: %v\n", err)
			return exitInvalidConfig
		}
		for _, s := range schemas {
			if !domain.EventType(s.Event).Known() {
				log.Printf("hookd: schema for event type %q: payloads will be validated but the type has no handler", s.Event)
			}
			validator.Register(s)
		}
		log.Printf("hookd: loaded %d payload schemas from %s", len(schemas), cfg.ValidationSchemaFile)
	}

	// Handler side effects: comments and crawl triggers.
	var comments dispatch.CommentPoster
	if cfg.GitHubToken != "" {
		comments = github.NewClient(cfg.GitHubAPIURL, cfg.GitHubToken)
	} else {
		comments = github.NewLogPoster()
		log.Println("hookd: GITHUB_TOKEN not set; comments will be logged, not posted")
	}

	var crawler dispatch.CrawlRequester
	if cfg.CrawlerBin != "" {
		crawler = crawl.NewCommandRequester(cfg.CrawlerBin)
		log.Printf("hookd: crawl requests run %s", cfg.CrawlerBin)
	} else {
		crawler = crawl.NewLogRequester()
		log.Println("hookd: CRAWLER_BIN not set; crawl requests will be logged only")
	}

	registry := dispatch.NewRegistry()
	registry.Register(domain.EventPing, dispatch.NewPingHandler())
	registry.Register(domain.EventPush, dispatch.NewPushHandler(crawler))
	registry.Register(domain.EventIssues, dispatch.NewIssuesHandler(comments))
	registry.Register(domain.EventIssueComment, dispatch.NewIssueCommentHandler(comments))
	registry.Register(domain.EventPullRequest, dispatch.NewPullRequestHandler(comments, crawler))

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("hookd: metrics enabled (addr=%s, path=%s)", cfg.MetricsAddr, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("hookd: metrics server listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("hookd: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("hookd: METRICS_ENABLED not set; metrics disabled")
	}

	rec := recorder.New(store)
	if metricsSink != nil {
		rec = rec.WithMetrics(metricsSink)
	}

	retrier := retry.New(retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	})

	orch := pipeline.New(cfg.WebhookSecret, limiter, validator, registry, retrier, rec, metrics.NewCollector())
	if metricsSink != nil {
		orch = orch.WithSink(metricsSink)
	}

	// Payload archive (optional): bounded queue, single drain-on-shutdown worker.
	var archiveWg sync.WaitGroup
	var cancelArchive context.CancelFunc
	if cfg.ArchiveBucket != "" {
		uploader, err := archive.NewS3Uploader(context.Background(), cfg.ArchiveRegion, cfg.ArchiveBucket, cfg.ArchiveMaxRetries)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize archive uploader: %v\n", err)
			return exitRuntimeError
		}
		queue := archive.NewQueue(cfg.ArchiveBufferSize)
		worker := archive.NewWorker(queue, uploader)
		if metricsSink != nil {
			worker = worker.WithMetrics(metricsSink)
		}
		orch = orch.WithArchive(queue)

		var archiveCtx context.Context
		archiveCtx, cancelArchive = context.WithCancel(context.Background())
		archiveWg.Add(1)
		go func() {
			defer archiveWg.Done()
			worker.Run(archiveCtx)
		}()
		log.Printf("hookd: payload archive enabled (bucket=%s, region=%s, buffer=%d)",
			cfg.ArchiveBucket, cfg.ArchiveRegion, cfg.ArchiveBufferSize)
	} else {
		log.Println("hookd: ARCHIVE_BUCKET not set; payload archive disabled")
	}

	apiHandler := api.NewHandler(orch, store).
		WithLimits(cfg.MaxBodyBytes, cfg.RequestTimeout)
	if db != nil {
		apiHandler = apiHandler.WithHealthChecker(db)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("hookd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("hookd: http server error: %v", err)
		}
	}()

	// Retention sweeper runs on whichever replica holds the leader lock.
	var electorWg sync.WaitGroup
	var cancelElector context.CancelFunc
	if cfg.RetentionEnabled {
		sweeper := retention.New(retention.Config{
			Schedule:  cfg.RetentionSchedule,
			MaxAge:    cfg.RetentionMaxAge,
			OpTimeout: cfg.DBOpTimeout,
		}, store)

		var sweeperWg sync.WaitGroup
		elector := leaderelection.New(
			db,
			cfg.LeaderLockKey,
			cfg.LeaderRetryInterval,
			cfg.LeaderHeartbeatInterval,
			func(leaderCtx context.Context) {
				sweeperWg.Add(1)
				go func() {
					defer sweeperWg.Done()
					if err := sweeper.Run(leaderCtx); err != nil {
						log.Printf("hookd: retention sweeper error: %v", err)
					}
				}()
			},
			sweeperWg.Wait,
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}

		var electorCtx context.Context
		electorCtx, cancelElector = context.WithCancel(context.Background())
		electorWg.Add(1)
		go func() {
			defer electorWg.Done()
			elector.Run(electorCtx)
		}()
		log.Printf("hookd: retention enabled (schedule=%q, max_age=%s, lock_key=%d)",
			cfg.RetentionSchedule, cfg.RetentionMaxAge, cfg.LeaderLockKey)
	} else {
		log.Println("hookd: RETENTION_ENABLED not set; retention sweeper disabled")
	}

	log.Printf("hookd: started (http=%s)", cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("hookd: received signal %v, shutting down", received)

	// Phase 1: Stop accepting deliveries.
	log.Println("hookd: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("hookd: http server shutdown error: %v", err)
	}
	log.Println("hookd: http server stopped")

	// Phase 2: Release the retention leader lock.
	if cancelElector != nil {
		log.Println("hookd: stopping retention elector...")
		cancelElector()
		electorWg.Wait()
		log.Println("hookd: retention elector stopped")
	}

	// Phase 3: Stop the archive worker (drains buffered payloads first).
	if cancelArchive != nil {
		log.Println("hookd: stopping archive worker (draining payloads)...")
		cancelArchive()
		archiveWg.Wait()
		log.Println("hookd: archive worker stopped")
	}

	// Phase 4: Stop metrics server if running.
	if metricsServer != nil {
		log.Println("hookd: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("hookd: metrics server shutdown error: %v", err)
		}
		log.Println("hookd: metrics server stopped")
	}

	log.Println("hookd: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("hookd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
