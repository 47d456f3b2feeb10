// Command server boots the grading dispatch core: it loads configuration,
// wires the credential pool, rate budget, dispatcher, upstream client and
// result store, and serves the HTTP/SSE surface until a termination
// signal arrives. Grounded on the teacher's cmd/api/main.go wiring.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/inkgrade/internal/config"
	"github.com/ocx/inkgrade/internal/credentialpool"
	"github.com/ocx/inkgrade/internal/dispatcher"
	"github.com/ocx/inkgrade/internal/floodlimiter"
	"github.com/ocx/inkgrade/internal/grading"
	"github.com/ocx/inkgrade/internal/httpapi"
	"github.com/ocx/inkgrade/internal/ratebudget"
	"github.com/ocx/inkgrade/internal/resultstore"
	"github.com/ocx/inkgrade/internal/resultstore/memstore"
	"github.com/ocx/inkgrade/internal/resultstore/postgrestore"
	"github.com/ocx/inkgrade/internal/upstream"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, budget := buildPoolAndBudget(cfg)
	store := buildStore()
	dispatch := dispatcher.New(pool, budget, cfg.Dispatch.MaxConcurrent, cfg.Dispatch.RetryCount)
	flood := floodlimiter.New(store, cfg.Flood.WindowMinutes, cfg.Flood.MaxCalls)

	engine := &grading.Engine{
		Pool:             pool,
		Budget:           budget,
		Dispatch:         dispatch,
		Upstream:         buildUpstreamClient(),
		Store:            store,
		MaxImageSize:     cfg.Image.MaxImageSize,
		WholePagePrompt:  loadPrompt(cfg.Prompts.WholePagePromptFile, wholePagePrompt),
		SingleCharPrompt: loadPrompt(cfg.Prompts.SingleCharPromptFile, singleCharPrompt),
	}

	handlers := &httpapi.Handlers{Engine: engine, Store: store, Flood: flood}
	server := httpapi.NewServer(cfg.Server, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if ip, ok := pool.(*credentialpool.InProcessPool); ok {
		go ip.RunRecoveryLoop(ctx, time.Duration(cfg.Pool.KeyCooldownSeconds)*time.Second)
	}
	if rp, ok := pool.(*credentialpool.RedisPool); ok {
		go rp.RunRecoveryLoop(ctx, time.Duration(cfg.Pool.KeyCooldownSeconds)*time.Second)
	}
	if ib, ok := budget.(*ratebudget.InProcessBudget); ok {
		go ib.RunCleanupLoop(ctx.Done(), time.Duration(cfg.Budget.WindowSeconds)*time.Second)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		slog.Error("server exited unexpectedly", "error", err)
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

func buildPoolAndBudget(cfg *config.Config) (credentialpool.Pool, ratebudget.Budget) {
	cooldown := time.Duration(cfg.Pool.KeyCooldownSeconds) * time.Second
	borrowTimeout := time.Duration(cfg.Pool.BorrowTimeoutSeconds) * time.Second
	windowSize := time.Duration(cfg.Budget.WindowSeconds) * time.Second

	if cfg.Pool.StorageType == "shared-remote" && cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pool := credentialpool.NewRedisPool(rdb, "inkgrade:credentials", cooldown, borrowTimeout)
		pool.AddKeys(cfg.Pool.APIKeys...)
		budget := ratebudget.NewRedisBudget(rdb, "inkgrade:ratebudget", windowSize, cfg.Budget.MaxRequests)
		return pool, budget
	}

	pool := credentialpool.NewInProcessPool(cfg.Pool.APIKeys, cooldown, borrowTimeout)
	budget := ratebudget.NewInProcessBudget(windowSize, cfg.Budget.MaxRequests)
	return pool, budget
}

func buildStore() resultstore.Store {
	dsn := os.Getenv("GRADING_POSTGRES_DSN")
	if dsn == "" {
		slog.Warn("GRADING_POSTGRES_DSN not set, falling back to in-memory result store")
		return memstore.New()
	}
	store, err := postgrestore.Open(dsn)
	if err != nil {
		slog.Error("failed to open postgres result store, falling back to in-memory", "error", err)
		return memstore.New()
	}
	return store
}

func buildUpstreamClient() upstream.Client {
	endpoint := os.Getenv("GRADING_UPSTREAM_ENDPOINT")
	model := os.Getenv("GRADING_UPSTREAM_MODEL")
	authHeader := os.Getenv("GRADING_UPSTREAM_AUTH_HEADER")
	authScheme := os.Getenv("GRADING_UPSTREAM_AUTH_SCHEME")
	if os.Getenv("GRADING_UPSTREAM_STYLE") == "message" {
		return upstream.NewMessageStyleClient(endpoint, model, authHeader, authScheme)
	}
	return upstream.NewChatCompletionsClient(endpoint, model, authHeader, authScheme)
}

// loadPrompt reads prompt text from path when configured, falling back to
// fallback otherwise. The engine only ever sees the resulting opaque
// string, never the file path.
func loadPrompt(path, fallback string) string {
	if path == "" {
		return fallback
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read prompt file, using built-in default", "path", path, "error", err)
		return fallback
	}
	return string(data)
}

// Built-in default prompts, used when no prompt file is configured.
const (
	wholePagePrompt = `请批改这张书法作业图片，按以下格式输出：
共识别 N 个汉字（R行C列）：字…
结构：S 分｜笔画：T 分｜综合：O 分
【重点点评】
1.「字」（第R行第C列，综合 O 分）
结构（S 分）：点评
笔画（T 分）：点评
建议：练习建议
【总评】总体点评`

	singleCharPrompt = `请批改这一个汉字，按以下格式输出：
字：X
结构：a分｜笔画：b分｜重心：c分｜间架：d分｜综合：e分
【结构分析】…
【笔画分析】…
【重心分析】…
【间架分析】…
【总评】…
【练习建议】…`
)
