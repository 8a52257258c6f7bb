package pipeline

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"chat-relay/internal/dialog"
	"chat-relay/internal/history"
	"chat-relay/internal/llm"
)

// DefaultReplyLimit is the Telegram message size cap.
const DefaultReplyLimit = 4096

// Pipeline orchestrates one inbound message: dialogue log append, context
// read, model call, context update, reply truncation.
type Pipeline struct {
	llmClient    llm.Client
	history      *history.Manager
	dialogLog    *dialog.Log
	systemPrompt string
	replyLimit   int
	now          func() time.Time
}

func New(llmClient llm.Client, h *history.Manager, l *dialog.Log, systemPrompt string, replyLimit int) *Pipeline {
	if replyLimit <= 0 {
		replyLimit = DefaultReplyLimit
	}
	return &Pipeline{
		llmClient:    llmClient,
		history:      h,
		dialogLog:    l,
		systemPrompt: systemPrompt,
		replyLimit:   replyLimit,
		now:          time.Now,
	}
}

// Handle relays one message and returns the reply. Errors are the model
// client's (including llm.ErrRateLimited); the caller maps them to
// user-facing text. The dialogue log append is best-effort and is never
// rolled back on model failure.
func (p *Pipeline) Handle(ctx context.Context, userID int64, userName, text string) (string, error) {
	if err := p.dialogLog.Append(dialog.Entry{
		Timestamp: p.now(),
		UserID:    userID,
		UserName:  userName,
		Message:   text,
	}); err != nil {
		log.Printf("failed to append dialogue log: %v", err)
	}

	// Build context: system + history + the new message. The context store
	// is not touched again until the model call returns, so no lock is
	// held while the call is in flight.
	var contextMsgs []llm.Message
	if p.systemPrompt != "" {
		contextMsgs = append(contextMsgs, llm.Message{Role: "system", Content: p.systemPrompt})
	}
	contextMsgs = append(contextMsgs, p.history.Get(userID)...)
	contextMsgs = append(contextMsgs, llm.Message{Role: "user", Content: text})

	resp, err := p.llmClient.Generate(ctx, contextMsgs)
	if err != nil {
		return "", err
	}

	log.Printf("LLM response [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)

	p.history.AppendUser(userID, text)
	p.history.AppendAssistant(userID, resp.Content)

	return truncateReply(resp.Content, p.replyLimit), nil
}

func truncateReply(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
