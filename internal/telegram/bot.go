package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chat-relay/internal/dialog"
	"chat-relay/internal/history"
	"chat-relay/internal/llm"
	"chat-relay/internal/pipeline"
	"chat-relay/internal/report"
)

const (
	greetingMsg    = "Привет! Я бот-ассистент 🤖"
	contextCleared = "Контекст сброшен"
	rateLimitedMsg = "Слишком много запросов к модели, попробуйте чуть позже 🙏"
	genericErrMsg  = "Что-то пошло не так, попробуйте ещё раз."
	emptyReportMsg = "Сегодня сообщений не было."
	notAllowedMsg  = "Эта команда доступна только администратору."
)

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	pipeline    *pipeline.Pipeline
	history     *history.Manager
	dialogLog   *dialog.Log
	aggregator  *report.Aggregator
	adminChatID int64
	cutoffHour  int
	loc         *time.Location
}

func New(botToken string, p *pipeline.Pipeline, h *history.Manager, l *dialog.Log, agg *report.Aggregator, adminChatID int64, cutoffHour int) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:         api,
		s:           apiSender{api: api},
		pipeline:    p,
		history:     h,
		dialogLog:   l,
		aggregator:  agg,
		adminChatID: adminChatID,
		cutoffHour:  cutoffHour,
		loc:         time.Local,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		// Closes the updates channel, which ends the loop below.
		b.api.StopReceivingUpdates()
	}()

	b.run(ctx, updates)
}

func (b *Bot) run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			msg := update.Message
			if msg.IsCommand() {
				b.handleCommand(ctx, msg)
				continue
			}
			if msg.Text == "" {
				continue
			}
			// One goroutine per message: a hung model call delays only that
			// user's reply.
			go b.handleIncomingMessage(ctx, msg)
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	log.Printf("Incoming message from %d (@%s): %q", msg.From.ID, msg.From.UserName, msg.Text)

	reply, err := b.pipeline.Handle(ctx, msg.From.ID, userName(msg.From), msg.Text)
	if err != nil {
		log.Printf("failed to generate reply for %d: %v", msg.From.ID, err)
		if errors.Is(err, llm.ErrRateLimited) {
			b.sendMessage(msg.Chat.ID, rateLimitedMsg)
			return
		}
		b.sendMessage(msg.Chat.ID, genericErrMsg)
		return
	}
	b.sendMessage(msg.Chat.ID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID, greetingMsg)
	case "clear":
		b.history.Reset(msg.From.ID)
		b.sendMessage(msg.Chat.ID, contextCleared)
	case "stats":
		b.handleStats(msg.Chat.ID)
	case "report":
		if b.adminChatID == 0 || msg.From.ID != b.adminChatID {
			b.sendMessage(msg.Chat.ID, notAllowedMsg)
			return
		}
		b.handleManualReport(msg.Chat.ID)
	default:
		log.Printf("Unknown command from %d: %q", msg.From.ID, msg.Command())
	}
}

func (b *Bot) handleStats(chatID int64) {
	now := time.Now().In(b.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.loc)
	entries, err := b.dialogLog.ReadWindow(midnight, now)
	if err != nil {
		log.Printf("failed to read dialogue log for stats: %v", err)
		b.sendMessage(chatID, genericErrMsg)
		return
	}
	users := make(map[int64]bool)
	for _, e := range entries {
		users[e.UserID] = true
	}
	b.sendMessage(chatID, fmt.Sprintf("📈 Сегодня: %d сообщений от %d пользователей", len(entries), len(users)))
}

// handleManualReport summarizes the current daily bucket up to now and
// sends the rendered report. The window has not elapsed, so it is only
// rendered, never persisted: its artifact key would be the completed
// window's and a partial report must not overwrite a finished one.
func (b *Bot) handleManualReport(chatID int64) {
	now := time.Now().In(b.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), b.cutoffHour, 0, 0, 0, b.loc)
	if now.Hour() < b.cutoffHour {
		start = start.AddDate(0, 0, -1)
	}

	rep, err := b.aggregator.Compute(report.Window{Start: start, End: now, Kind: report.KindDaily})
	if err != nil {
		log.Printf("manual report failed: %v", err)
		b.sendMessage(chatID, genericErrMsg)
		return
	}
	if rep == nil {
		b.sendMessage(chatID, emptyReportMsg)
		return
	}
	b.sendMessage(chatID, rep.Render())
}

// SendReport delivers a rendered report to the admin chat. Used by the
// scheduler for daily reports.
func (b *Bot) SendReport(text string) {
	if b.adminChatID == 0 {
		return
	}
	b.sendMessage(b.adminChatID, text)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func userName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}
