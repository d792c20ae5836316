package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/config"
	"github.com/liuran001/sonatica-go/sonatica/discord"
	"github.com/liuran001/sonatica-go/sonatica/lavalink"
	logpkg "github.com/liuran001/sonatica-go/sonatica/logger"
	"github.com/liuran001/sonatica-go/sonatica/metrics"
	"github.com/liuran001/sonatica-go/sonatica/selector"
	"github.com/liuran001/sonatica-go/sonatica/store"
	"github.com/liuran001/sonatica-go/sonatica/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App wires all application dependencies.
type App struct {
	Config   *config.Config
	Logger   *logpkg.Logger
	Store    sonatica.Store
	Pool     *worker.Pool
	Manager  *lavalink.Manager
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
	Discord  *discordgo.Session
	Build    BuildInfo

	metricsServer *http.Server
	detach        []func()
}

// BuildInfo provides build-time metadata.
type BuildInfo struct {
	RuntimeVer string
	BinVersion string
	CommitSHA  string
	BuildTime  string
	BuildArch  string
}

// New builds the application container.
func New(ctx context.Context, configPath string, build BuildInfo) (*App, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logpkg.New(logpkg.Options{
		Level:     conf.GetString("LogLevel"),
		Format:    conf.GetString("LogFormat"),
		AddSource: conf.GetBool("LogSource"),
		Dir:       conf.GetString("LogDir"),
	})
	if err != nil {
		return nil, err
	}

	clientID, err := parseClientID(conf.GetString("ClientID"))
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	st, err := newStore(ctx, conf, log, clientID)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	pool := worker.New(conf.GetInt("WorkerPoolSize"), log)

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		pool.StopNow()
		closeStore(st)
		_ = log.Close()
		return nil, err
	}

	a := &App{
		Config:   conf,
		Logger:   log,
		Store:    st,
		Pool:     pool,
		Metrics:  collector,
		Registry: registry,
		Build:    build,
	}

	if token := strings.TrimSpace(conf.GetString("BotToken")); token != "" {
		session, err := discordgo.New("Bot " + token)
		if err != nil {
			_ = a.Shutdown(ctx)
			return nil, fmt.Errorf("init discord: %w", err)
		}
		session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
		a.Discord = session
	}

	opts := ManagerOptions(conf)
	opts.ClientID = clientID
	opts.Store = st
	opts.Pool = pool
	opts.Logger = log
	opts.RequestObserver = collector.ObserveRequest
	if a.Discord != nil {
		opts.Send = discord.SendFunc(a.Discord)
	}
	a.Manager = lavalink.New(opts)
	a.detach = append(a.detach, collector.Attach(a.Manager))

	return a, nil
}

// ManagerOptions translates configuration keys into manager options. Store,
// pool, logger and send function are left for the caller.
func ManagerOptions(conf *config.Config) lavalink.Options {
	opts := lavalink.Options{
		ClientName:            conf.GetString("ClientName"),
		Shards:                conf.GetInt("Shards"),
		AutoPlay:              conf.GetBool("AutoPlay"),
		AutoMove:              conf.GetBool("AutoMove"),
		AutoResume:            conf.GetBool("AutoResume"),
		DefaultSearchPlatform: conf.GetString("DefaultSearchPlatform"),
		CacheTTL:              conf.GetSeconds("CacheTTLSeconds"),
		CacheSize:             conf.GetInt("CacheSize"),
		CacheCleanupInterval:  conf.GetSeconds("CacheCleanupSeconds"),
		MoveGracePeriod:       conf.GetSeconds("MoveGraceSeconds"),
		ResumeTimeout:         conf.GetSeconds("ResumeTimeoutSeconds"),
	}

	switch strings.ToLower(strings.TrimSpace(conf.GetString("Sorter"))) {
	case "leastused", "least_used":
		opts.Sorter = selector.LeastUsed[*lavalink.Node]
	default:
		opts.Sorter = selector.LeastLoad[*lavalink.Node]
	}

	for _, n := range conf.Nodes() {
		opts.Nodes = append(opts.Nodes, lavalink.NodeOptions{
			Identifier:           n.Identifier,
			Host:                 n.Host,
			Port:                 n.Port,
			Password:             n.Password,
			Secure:               n.Secure,
			RetryAmount:          n.RetryAmount,
			RetryDelay:           n.RetryDelay,
			RequestTimeout:       n.RequestTimeout,
			RequestsPerSecond:    n.RequestsPerSecond,
			DisableSearch:        !n.Search,
			DisablePlayback:      !n.Playback,
			HealthCheckInterval:  n.HealthCheckInterval,
			HealthCheckThreshold: n.HealthCheckThreshold,
		})
	}
	return opts
}

// Start connects the nodes, the metrics endpoint and the Discord gateway.
// Without a gateway session the manager initializes from ClientID.
func (a *App) Start(ctx context.Context) error {
	if addr := strings.TrimSpace(a.Config.GetString("MetricsAddr")); addr != "" {
		a.startMetrics(addr)
	}

	if a.Discord != nil {
		a.detach = append(a.detach, discord.Attach(ctx, a.Discord, a.Manager, a.Logger))
		if err := a.Discord.Open(); err != nil {
			return fmt.Errorf("open discord session: %w", err)
		}
		if a.Logger != nil {
			a.Logger.Info("discord session opened")
		}
		return nil
	}

	clientID := a.Manager.ClientID()
	if clientID == 0 {
		return fmt.Errorf("ClientID is required without BotToken: %w", lavalink.ErrInvalidArgument)
	}
	if err := a.Manager.Init(ctx, clientID); err != nil {
		return fmt.Errorf("init manager: %w", err)
	}
	if a.Logger != nil {
		a.Logger.Info("manager started",
			"client_id", clientID,
			"nodes", len(a.Manager.Nodes()),
			"version", a.Build.BinVersion,
		)
	}
	return nil
}

func (a *App) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	a.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if a.Logger != nil {
			a.Logger.Info("metrics listening", "addr", addr)
		}
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if a.Logger != nil {
				a.Logger.Error("metrics server stopped", "error", err)
			}
		}
	}()
}

// Shutdown releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	for _, detach := range a.detach {
		detach()
	}
	a.detach = nil

	if a.Discord != nil {
		if err := a.Discord.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close discord session: %w", err)
		}
	}

	if a.Manager != nil {
		if err := a.Manager.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown manager: %w", err)
		}
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown metrics server: %w", err)
		}
	}

	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			a.Pool.StopNow()
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown worker pool: %w", err)
			}
		}
	}

	if err := closeStore(a.Store); err != nil {
		if a.Logger != nil {
			a.Logger.Error("failed to close store", "error", err)
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close logger: %w", err)
		}
	}

	return firstErr
}

func parseClientID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("parse ClientID %q: %w", raw, err)
	}
	return id, nil
}

func newStore(ctx context.Context, conf *config.Config, log *logpkg.Logger, clientID snowflake.ID) (sonatica.Store, error) {
	ns := store.Namespace{ClientID: clientID.String(), Shards: conf.GetInt("Shards")}
	ttl := conf.GetSeconds("StoreTTLSeconds")

	switch kind := strings.ToLower(strings.TrimSpace(conf.GetString("Store"))); kind {
	case "", "memory":
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(ctx, conf.GetString("RedisURL"), ns, ttl)
	case "sqlite":
		path := strings.TrimSpace(conf.GetString("SQLitePath"))
		if path == "" {
			path = "data/sonatica.db"
		}
		gormLogger := logpkg.NewGormLogger(log.Slog(), logpkg.GormLevel(conf.GetString("GormLogLevel")))
		return store.NewSQLite(path, ns, ttl, gormLogger)
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func closeStore(st sonatica.Store) error {
	if closer, ok := st.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
