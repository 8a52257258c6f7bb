package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chat-relay/internal/dialog"
	"chat-relay/internal/history"
	"chat-relay/internal/llm"
	"chat-relay/internal/pipeline"
	"chat-relay/internal/report"
	"chat-relay/internal/storage"
)

type fakeSender struct{ sent []string }

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sw := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sw.Text)
	return tgbotapi.Message{}, nil
}

type fakeLLM struct {
	resp llm.Response
	err  error
}

func (f fakeLLM) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	return f.resp, f.err
}

func newTestBot(t *testing.T, client llm.Client) (*Bot, *fakeSender, storage.Store) {
	t.Helper()
	st, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	l := dialog.NewLog(st)
	h := history.NewManager(5)
	fs := &fakeSender{}
	b := &Bot{
		s:           fs,
		pipeline:    pipeline.New(client, h, l, "", 0),
		history:     h,
		dialogLog:   l,
		aggregator:  report.NewAggregator(l, st),
		adminChatID: 999,
		cutoffHour:  23,
		loc:         time.UTC,
	}
	return b, fs, st
}

func TestHandleIncomingMessage_SendsReply(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{resp: llm.Response{Content: "hello there", Model: "test"}})

	msg := &tgbotapi.Message{From: &tgbotapi.User{ID: 42, UserName: "alice"}, Chat: &tgbotapi.Chat{ID: 100}, Text: "hi"}
	b.handleIncomingMessage(context.Background(), msg)

	if len(fs.sent) != 1 || fs.sent[0] != "hello there" {
		t.Fatalf("unexpected sent: %+v", fs.sent)
	}
}

func TestHandleIncomingMessage_RateLimited(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{err: llm.ErrRateLimited})

	msg := &tgbotapi.Message{From: &tgbotapi.User{ID: 42, UserName: "alice"}, Chat: &tgbotapi.Chat{ID: 100}, Text: "hi"}
	b.handleIncomingMessage(context.Background(), msg)

	if len(fs.sent) != 1 || fs.sent[0] != rateLimitedMsg {
		t.Fatalf("rate-limit message not sent: %+v", fs.sent)
	}
}

func TestHandleIncomingMessage_GenericError(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{err: context.DeadlineExceeded})

	msg := &tgbotapi.Message{From: &tgbotapi.User{ID: 42, UserName: "alice"}, Chat: &tgbotapi.Chat{ID: 100}, Text: "hi"}
	b.handleIncomingMessage(context.Background(), msg)

	if len(fs.sent) != 1 || fs.sent[0] != genericErrMsg {
		t.Fatalf("generic error message not sent: %+v", fs.sent)
	}
}

func TestClearCommand_ResetsOnlyThatUser(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{resp: llm.Response{Content: "ok"}})
	b.history.AppendUser(42, "hello")
	b.history.AppendUser(43, "hey")

	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "/clear",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/clear")},
		},
	}
	b.handleCommand(context.Background(), msg)

	if len(fs.sent) != 1 || fs.sent[0] != contextCleared {
		t.Fatalf("confirmation not sent: %+v", fs.sent)
	}
	if len(b.history.Get(42)) != 0 {
		t.Fatalf("context not cleared")
	}
	if len(b.history.Get(43)) != 1 {
		t.Fatalf("other user's context touched")
	}
}

func TestReportCommand_AdminOnly(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{})

	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "/report",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/report")},
		},
	}
	b.handleCommand(context.Background(), msg)

	if len(fs.sent) != 1 || fs.sent[0] != notAllowedMsg {
		t.Fatalf("non-admin not rejected: %+v", fs.sent)
	}
}

func TestManualReport_EmptyDay(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{})
	b.handleManualReport(999)
	if len(fs.sent) != 1 || fs.sent[0] != emptyReportMsg {
		t.Fatalf("empty-day message not sent: %+v", fs.sent)
	}
}

func TestManualReport_RendersReport(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{})
	if err := b.dialogLog.Append(dialog.Entry{
		Timestamp: time.Now().UTC().Add(-time.Second),
		UserID:    42,
		UserName:  "alice",
		Message:   "длинное сообщение про погоду",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	b.handleManualReport(999)
	if len(fs.sent) != 1 {
		t.Fatalf("want 1 message, got %d", len(fs.sent))
	}
	if !strings.Contains(fs.sent[0], "Сообщений: 1") {
		t.Fatalf("report not rendered: %q", fs.sent[0])
	}
}

func TestManualReport_KeepsCompletedDailyArtifact(t *testing.T) {
	b, fs, st := newTestBot(t, fakeLLM{})
	b.cutoffHour = 0 // every call is past the cutoff

	now := time.Now().UTC()
	key := "report_daily_" + now.Format("2006-01-02")
	completed := []byte("завершённый дневной отчёт")
	if err := st.WriteArtifact(key, completed); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}
	if err := b.dialogLog.Append(dialog.Entry{
		Timestamp: now.Add(-time.Second),
		UserID:    42,
		UserName:  "alice",
		Message:   "сообщение после полуночи",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	b.handleManualReport(999)

	if len(fs.sent) != 1 || !strings.Contains(fs.sent[0], "Сообщений: 1") {
		t.Fatalf("report not rendered: %+v", fs.sent)
	}
	got, err := st.ReadArtifact(key)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != string(completed) {
		t.Fatalf("daily artifact overwritten: %q", got)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	b, _, _ := newTestBot(t, fakeLLM{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	updates := make(chan tgbotapi.Update)
	go func() {
		b.run(ctx, updates)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRun_DispatchesCommands(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{})

	updates := make(chan tgbotapi.Update, 1)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 100},
		Text: "/start",
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len("/start")},
		},
	}}
	close(updates)
	b.run(context.Background(), updates)

	if len(fs.sent) != 1 || fs.sent[0] != greetingMsg {
		t.Fatalf("greeting not sent: %+v", fs.sent)
	}
}

func TestStatsCommand(t *testing.T) {
	b, fs, _ := newTestBot(t, fakeLLM{})
	now := time.Now().UTC().Add(-time.Second)
	for _, e := range []dialog.Entry{
		{Timestamp: now, UserID: 1, UserName: "a", Message: "x"},
		{Timestamp: now, UserID: 2, UserName: "b", Message: "y"},
		{Timestamp: now, UserID: 1, UserName: "a", Message: "z"},
	} {
		if err := b.dialogLog.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	b.handleStats(100)
	if len(fs.sent) != 1 || !strings.Contains(fs.sent[0], "3 сообщений от 2 пользователей") {
		t.Fatalf("unexpected stats: %+v", fs.sent)
	}
}
