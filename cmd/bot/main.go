package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"chat-relay/internal/config"
	"chat-relay/internal/dialog"
	"chat-relay/internal/history"
	"chat-relay/internal/llm"
	"chat-relay/internal/pipeline"
	"chat-relay/internal/report"
	"chat-relay/internal/scheduler"
	"chat-relay/internal/storage"
	"chat-relay/internal/telegram"
	"chat-relay/internal/webserver"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	ctx := context.Background()

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}

	dialogLog := dialog.NewLog(store)

	var histRepo history.Repository
	if cfg.HistoryFilePath != "" {
		repo, err := history.NewFileRepository(cfg.HistoryFilePath)
		if err != nil {
			log.Printf("failed to init history snapshot repo: %v", err)
		} else {
			histRepo = repo
		}
	}
	histMgr := history.NewManagerWithRepo(histRepo, cfg.MaxHistory)

	llmClient, err := llm.NewFactory(cfg).CreateClient(ctx, cfg.LLMProvider)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	systemPrompt := readSystemPrompt(cfg.SystemPromptPath)

	pipe := pipeline.New(llmClient, histMgr, dialogLog, systemPrompt, cfg.ReplyLimit)
	aggregator := report.NewAggregator(dialogLog, store)

	bot, err := telegram.New(cfg.TelegramBotToken, pipe, histMgr, dialogLog, aggregator, cfg.AdminChatID, cfg.DailyCutoffHour)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	ws := webserver.New(cfg.Port)
	go func() {
		if err := ws.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("keep-alive server stopped: %v", err)
		}
	}()

	sched := scheduler.New(time.Local, cfg.TickInterval, cfg.DailyCutoffHour, store)
	sched.SetReportFunc(func(ctx context.Context, w report.Window) error {
		rep, err := aggregator.Aggregate(w)
		if err != nil {
			return err
		}
		if rep != nil && w.Kind == report.KindDaily {
			bot.SendReport(rep.Render())
		}
		return nil
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	bot.Start(ctx)
}

func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StorageBackend == "sqlite" {
		return storage.NewSQLiteStore(cfg.SQLitePath)
	}
	return storage.NewFileStore(cfg.DataDir)
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}
