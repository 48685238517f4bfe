// Command fankeeper runs the fanpage moderation agent: poll for new
// comments, classify intent, execute reply/hide/inbox actions through the
// remote API or the browser fallback, and append every outcome to the
// SQLite audit log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vuxmai/fankeeper/agent"
	"github.com/vuxmai/fankeeper/api"
	"github.com/vuxmai/fankeeper/browser"
	"github.com/vuxmai/fankeeper/classify"
	"github.com/vuxmai/fankeeper/config"
	"github.com/vuxmai/fankeeper/graph"
	"github.com/vuxmai/fankeeper/store"
	"github.com/vuxmai/fankeeper/token"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	forceDemo := flag.Bool("demo", false, "force demo mode (no network or browser calls)")
	cycles := flag.Int("cycles", 0, "number of cycles to run (0 = run until interrupted)")
	interval := flag.Duration("interval", 0, "override the configured cycle interval")
	flag.Parse()

	_ = godotenv.Load()

	logger := newLogger(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *forceDemo, *cycles, *interval, logger); err != nil {
		logger.Error("fankeeper: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, forceDemo bool, cycles int, interval time.Duration, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	demo := cfg.IsDemo() || forceDemo
	if interval <= 0 {
		interval = cfg.Interval
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	processedIDs, err := st.ProcessedCommentIDs(ctx)
	if err != nil {
		return err
	}
	logger.Info("fankeeper: audit log loaded", "processed_ids", len(processedIDs))

	tokenConfigured := token.CleanToken(cfg.AccessToken) != ""
	mode := agent.SelectMode(demo, tokenConfigured)
	logger.Info("fankeeper: execution mode selected", "mode", mode.String())

	// The browser session backs both the fallback execution path and the
	// interactive token extraction. Demo mode never starts it.
	var session *browser.Session
	if !demo {
		session = browser.NewSession(browser.Config{
			Remote:   cfg.Browser.Remote,
			Headless: cfg.Browser.Headless == nil || *cfg.Browser.Headless,
			Logger:   logger,
		})
		if err := session.Start(); err != nil {
			logger.Warn("fankeeper: browser unavailable, continuing without fallback path", "error", err)
			session = nil
		} else {
			defer session.Close()
		}
	}

	tokens := buildTokenManager(cfg, session, logger)

	if mode == agent.ModeRemote {
		if _, err := tokens.GetValidToken(ctx, false); err != nil {
			if errors.Is(err, token.ErrNoToken) {
				return err
			}
			logger.Warn("fankeeper: token not valid at startup, actions will retry per-call", "error", err)
		} else {
			info := tokens.TokenInfo(ctx)
			logger.Info("fankeeper: token ready", "preview", info.Preview, "expires_at", info.ExpiresAt)
		}
	}

	client := graph.New(cfg.APIBaseURL, cfg.GraphVersion, tokens, graph.WithLogger(logger))

	pageID, err := resolvePageID(ctx, cfg, client, mode, logger)
	if err != nil {
		return err
	}

	var fallback *browser.Fallback
	if session != nil {
		fallback = browser.NewFallback(session, "https://www.facebook.com", pageID)
	}
	if mode == agent.ModeFallback && fallback == nil {
		return fmt.Errorf("fankeeper: no access token and no browser; configure a token or fix the browser launch")
	}

	var source agent.Source
	if demo {
		source = agent.NewDemoSource(processedIDs)
	} else {
		source = agent.NewCompositeSource(
			graph.NewCommentSource(client, pageID, processedIDs), fallback, logger)
	}

	executor := agent.NewExecutor(mode, client, fallback, logger)

	ag := agent.New(source, buildClassifier(ctx, cfg, logger), executor, st, tokens, agent.Config{
		Interval:           interval,
		MaxActionsPerCycle: cfg.MaxActionsPerCycle,
		Cycles:             cycles,
	}, logger)

	if cfg.ListenAddr != "" {
		srv := &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: api.NewServer(tokens, st, ag, logger).Router(),
		}
		go func() {
			logger.Info("fankeeper: status api listening", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("fankeeper: status api", "error", err)
			}
		}()
		defer srv.Close()
	}

	ag.Run(ctx)

	day := time.Now().UTC().Format("2006-01-02")
	if summary, err := st.SaveDailySummary(context.Background(), day); err != nil {
		logger.Error("fankeeper: daily summary failed", "error", err)
	} else {
		logger.Info("fankeeper: daily summary saved", "day", day, "total", summary.Total)
	}
	return nil
}

func buildTokenManager(cfg *config.Config, session *browser.Session, logger *slog.Logger) *token.Manager {
	cstore := token.ConfigStore{Cfg: cfg}
	validator := token.NewValidator(cfg.APIBaseURL, cfg.GraphVersion, nil, logger)
	refresher := token.NewRefresher(cstore, cfg.APIBaseURL, cfg.GraphVersion, nil, logger)

	var extractor token.Extractor
	if session != nil {
		extractor = browser.NewTokenExtractor(session, logger)
	}
	return token.NewManager(cstore, validator, refresher, extractor, logger)
}

func buildClassifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) classify.Classifier {
	if cfg.LLM.Provider == "gemini" {
		llm, err := classify.NewLLM(ctx, cfg.LLM.APIKey, cfg.LLM.Model, logger)
		if err != nil {
			logger.Warn("fankeeper: llm classifier unavailable, using rules", "error", err)
		} else {
			return llm
		}
	}
	return classify.Heuristic{}
}

// resolvePageID returns the configured fanpage, or, on the remote path,
// the first page the credential manages.
func resolvePageID(ctx context.Context, cfg *config.Config, client *graph.Client, mode agent.Mode, logger *slog.Logger) (string, error) {
	pageID := token.CleanToken(cfg.PageID) // same placeholder rules as the token
	if pageID != "" && pageID != "YOUR_PAGE_ID" {
		return pageID, nil
	}
	if mode != agent.ModeRemote {
		if mode == agent.ModeDemo {
			return "DEMO_PAGE", nil
		}
		return "", fmt.Errorf("fankeeper: page_id is required outside demo mode")
	}

	pages, err := client.ListPages(ctx)
	if err != nil {
		return "", fmt.Errorf("fankeeper: page_id not configured and listing failed: %w", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("fankeeper: credential manages no pages; set page_id explicitly")
	}
	logger.Info("fankeeper: auto-selected page", "id", pages[0].ID, "name", pages[0].Name)
	return pages[0].ID, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
