package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rookline/livematch/internal/archive"
	appcfg "github.com/rookline/livematch/internal/config"
	"github.com/rookline/livematch/internal/engine"
	"github.com/rookline/livematch/internal/match"
	"github.com/rookline/livematch/internal/msgcat"
	"github.com/rookline/livematch/internal/obslog"
	"github.com/rookline/livematch/internal/spotlight"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	store, err := match.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("match store init error: %v", err)
	}

	var mover engine.Source
	var engineSource *engine.UCISource
	if cfg.StockfishPath != "" {
		engineSource, err = engine.NewUCISource(cfg.StockfishPath)
		if err != nil {
			// Missing engine binary degrades to heuristic-only play.
			obslog.L().Warn("engine unavailable, heuristic play only", zap.Error(err))
		} else {
			mover = engineSource
		}
	}

	manager := match.NewManager(store, mover, match.Config{
		AdvanceCadence:    cfg.AdvanceCadence,
		IdleCeiling:       cfg.IdleCeiling,
		GraceWindow:       cfg.GraceWindow,
		EngineThinkTimeMs: cfg.EngineThinkTimeMs,
	})

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		manager.AttachArchiver(repo)
	}

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	var tournaments spotlight.TournamentSource
	if repo != nil {
		tournaments = repo
	}
	selector := spotlight.NewSelector(spotlight.Config{
		Enabled:         cfg.SpotlightEnabled,
		WindowSeconds:   cfg.SpotlightWindowSec,
		Count:           cfg.SpotlightCount,
		TournamentOnly:  cfg.TournamentOnly,
		AllowList:       cfg.TournamentAllowList,
		ExhibitionLevel: cfg.EngineStrength,
	}, tournaments, manager, cat)

	srv := newServer(manager, selector, cfg.AdminToken)
	go func() {
		obslog.L().Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = srv.Shutdown()
	if engineSource != nil {
		_ = engineSource.Close()
	}
	if repo != nil {
		_ = repo.Close()
	}
	_ = store.Close()
}
