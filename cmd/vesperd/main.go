// Command vesperd runs the vesper-memory MCP server over stdio.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	vesper "github.com/oculusnoob/vesper-memory"
	cachesqlite "github.com/oculusnoob/vesper-memory/cache/sqlite"
	"github.com/oculusnoob/vesper-memory/config"
	"github.com/oculusnoob/vesper-memory/consolidation"
	"github.com/oculusnoob/vesper-memory/embedder/gemini"
	graphpostgres "github.com/oculusnoob/vesper-memory/graph/postgres"
	graphsqlite "github.com/oculusnoob/vesper-memory/graph/sqlite"
	"github.com/oculusnoob/vesper-memory/mcp"
	"github.com/oculusnoob/vesper-memory/observe"
	"github.com/oculusnoob/vesper-memory/ratelimit"
	"github.com/oculusnoob/vesper-memory/router"
	"github.com/oculusnoob/vesper-memory/scheduler"
	"github.com/oculusnoob/vesper-memory/service"
	skillsqlite "github.com/oculusnoob/vesper-memory/skill/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a vesper.toml config file")
	userID := flag.String("user", "local", "user id stamped on every tool call from this process")
	tier := flag.String("tier", "standard", "rate-limit tier stamped on every tool call from this process")
	flag.Parse()

	cfg := config.Load(*configPath)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if cfg.Storage.Backend != "sqlite" && cfg.Storage.Backend != "postgres" {
		log.Fatalf("vesperd: storage backend %q is not wired; use \"sqlite\" or \"postgres\"", cfg.Storage.Backend)
	}
	if warning, err := config.EnsureStorageRoot(cfg); err != nil {
		log.Fatalf("vesperd: %v", err)
	} else if warning != "" {
		logger.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cache := cachesqlite.New(filepath.Join(cfg.Storage.Root, "cache.db"),
		cachesqlite.WithMaxConversations(cfg.WorkingMemory.MaxConversations),
		cachesqlite.WithTTL(cfg.WorkingMemory.TTL()))
	if err := cache.Init(ctx); err != nil {
		log.Fatalf("vesperd: init cache store: %v", err)
	}
	defer cache.Close()

	var graph vesper.GraphStore
	if cfg.Storage.Backend == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			log.Fatalf("vesperd: connect postgres: %v", err)
		}
		defer pool.Close()
		pg := graphpostgres.New(pool)
		if err := pg.Init(ctx); err != nil {
			log.Fatalf("vesperd: init graph store: %v", err)
		}
		defer pg.Close()
		graph = pg
	} else {
		sq := graphsqlite.New(filepath.Join(cfg.Storage.Root, "graph.db"))
		if err := sq.Init(ctx); err != nil {
			log.Fatalf("vesperd: init graph store: %v", err)
		}
		defer sq.Close()
		graph = sq
	}

	skills := skillsqlite.New(filepath.Join(cfg.Storage.Root, "skill.db"))
	if err := skills.Init(ctx); err != nil {
		log.Fatalf("vesperd: init skill store: %v", err)
	}
	defer skills.Close()

	var inst *observe.Instruments
	if cfg.Observer.Enabled {
		built, shutdown, err := observe.Init(ctx)
		if err != nil {
			log.Fatalf("vesperd: init observability: %v", err)
		}
		defer shutdown(context.Background())
		inst = built
	} else {
		inst = observe.NoOp()
	}

	observedCache := observe.WrapCache(cache, inst)
	observedGraph := observe.WrapGraphStore(graph, inst)
	observedSkills := observe.WrapSkillStore(skills, inst)

	rtr := router.New(observedCache, observedGraph, observedSkills, router.WithLogger(logger))

	var limiterOpts []ratelimit.Option
	if cfg.RateLimit.FailOpen {
		limiterOpts = append(limiterOpts, ratelimit.WithFailOpen())
	}
	limiter := ratelimit.New(observedCache, limiterOpts...)
	pipeline := consolidation.New(observedCache, observedGraph, observedSkills, consolidation.WithLogger(logger))

	var embedder vesper.Embedder
	if cfg.Embedding.Provider == "gemini" && cfg.Embedding.APIKey != "" {
		embedder = gemini.New(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	} else {
		logger.Warn("no embedding API key configured, stored memories will not carry vectors")
	}

	svc := service.New(observedCache, observedGraph, observedSkills, embedder, rtr, limiter, pipeline,
		service.WithLogger(logger), service.WithInstruments(inst))

	// Runs consolidation over every namespace svc has observed a write to
	// (§6's per-namespace scoping). A fresh process with no traffic yet
	// simply consolidates nothing until namespaces appear.
	sched := scheduler.New(func(ctx context.Context) vesper.ConsolidationStats {
		var stats vesper.ConsolidationStats
		for _, ns := range svc.ListNamespaces(ctx, service.ListNamespacesRequest{}).Namespaces {
			nsStats := pipeline.Run(ctx, ns)
			stats.MemoriesProcessed += nsStats.MemoriesProcessed
			stats.EntitiesExtracted += nsStats.EntitiesExtracted
			stats.RelationshipsCreated += nsStats.RelationshipsCreated
			stats.ConflictsDetected += nsStats.ConflictsDetected
			stats.MemoriesPruned += nsStats.MemoriesPruned
			stats.SkillsExtracted += nsStats.SkillsExtracted
			stats.DurationMs += nsStats.DurationMs
		}
		return stats
	}, scheduler.WithSchedule(cfg.Scheduler.Hour, cfg.Scheduler.Minute), scheduler.WithLogger(logger))
	sched.Start(ctx)
	defer sched.Stop()

	server := mcp.New(cfg.MCP.ServerName, cfg.MCP.ServerVersion)
	mcp.RegisterServiceTools(server, svc, *userID, *tier)

	logger.Info("vesperd starting", "storage_root", cfg.Storage.Root, "backend", cfg.Storage.Backend)
	if err := server.Serve(ctx); err != nil {
		log.Fatalf("vesperd: serve: %v", err)
	}
}
