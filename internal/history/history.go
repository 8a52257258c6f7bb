package history

import (
	"log"
	"sync"

	"chat-relay/internal/llm"
)

// DefaultMaxHistory is the number of retained turn-pairs per user.
const DefaultMaxHistory = 5

// Repository mirrors the in-memory sessions to durable storage so a
// restart does not lose open conversations. Mirroring is best-effort.
type Repository interface {
	Load() (map[int64][]llm.Message, error)
	Save(sessions map[int64][]llm.Message) error
}

// Manager owns the per-user bounded conversation windows. Each user's
// sequence holds at most maxHistory*2 entries (turns come in
// user/assistant pairs); the oldest entries are evicted first.
type Manager struct {
	mu         sync.RWMutex
	maxHistory int
	sessions   map[int64][]llm.Message
	repo       Repository
}

func NewManager(maxHistory int) *Manager {
	return NewManagerWithRepo(nil, maxHistory)
}

func NewManagerWithRepo(repo Repository, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	m := &Manager{
		maxHistory: maxHistory,
		sessions:   make(map[int64][]llm.Message),
		repo:       repo,
	}
	if repo != nil {
		sessions, err := repo.Load()
		if err != nil {
			log.Printf("failed to load history snapshot: %v", err)
		} else {
			for userID, msgs := range sessions {
				m.sessions[userID] = m.trim(msgs)
			}
		}
	}
	return m
}

func (m *Manager) AppendUser(userID int64, content string) {
	m.append(userID, llm.Message{Role: "user", Content: content})
}

func (m *Manager) AppendAssistant(userID int64, content string) {
	m.append(userID, llm.Message{Role: "assistant", Content: content})
}

// append pushes one entry, then trims to the newest maxHistory*2 entries.
// Trimming happens after the append, never before, under the same lock.
func (m *Manager) append(userID int64, msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = m.trim(append(m.sessions[userID], msg))
	m.persistLocked()
}

func (m *Manager) trim(msgs []llm.Message) []llm.Message {
	if bound := m.maxHistory * 2; len(msgs) > bound {
		msgs = msgs[len(msgs)-bound:]
	}
	return msgs
}

// Get returns a copy of the user's window; unseen users get an empty
// context, never an error.
func (m *Manager) Get(userID int64) []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	es := m.sessions[userID]
	out := make([]llm.Message, len(es))
	copy(out, es)
	return out
}

// Reset clears the window for one user only.
func (m *Manager) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	m.persistLocked()
}

func (m *Manager) persistLocked() {
	if m.repo == nil {
		return
	}
	snap := make(map[int64][]llm.Message, len(m.sessions))
	for userID, msgs := range m.sessions {
		cp := make([]llm.Message, len(msgs))
		copy(cp, msgs)
		snap[userID] = cp
	}
	if err := m.repo.Save(snap); err != nil {
		log.Printf("failed to save history snapshot: %v", err)
	}
}
