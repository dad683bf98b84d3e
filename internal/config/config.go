package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig is the process configuration, read once at startup. The match
// engine itself treats these values as read-only site toggles.
type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	StockfishPath     string
	EngineThinkTimeMs int
	EngineStrength    int

	AdvanceCadence time.Duration
	IdleCeiling    time.Duration
	GraceWindow    time.Duration

	SpotlightEnabled    bool
	SpotlightWindowSec  int
	SpotlightCount      int
	TournamentOnly      bool
	TournamentAllowList []string

	MessageOverrideDir string
	AdminToken         string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8092",
		EngineThinkTimeMs:  400,
		EngineStrength:     8,
		AdvanceCadence:     800 * time.Millisecond,
		IdleCeiling:        30 * time.Minute,
		GraceWindow:        2 * time.Minute,
		SpotlightEnabled:   true,
		SpotlightWindowSec: 300,
		SpotlightCount:     2,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))
	cfg.AdminToken = strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))

	if v := strings.TrimSpace(os.Getenv("ENGINE_THINK_TIME_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineThinkTimeMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_STRENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 20 {
			cfg.EngineStrength = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ADVANCE_CADENCE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AdvanceCadence = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("IDLE_CEILING")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.IdleCeiling = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("GRACE_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.GraceWindow = d
		}
	}

	if v := strings.TrimSpace(os.Getenv("SPOTLIGHT_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SpotlightEnabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("SPOTLIGHT_WINDOW_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SpotlightWindowSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SPOTLIGHT_COUNT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SpotlightCount = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOURNAMENT_ONLY")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TournamentOnly = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("TOURNAMENT_ALLOW_LIST")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.TournamentAllowList = append(cfg.TournamentAllowList, s)
			}
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
