package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/domain"
)

const streamBuffer = 16

// StreamManager fans session events out to SSE clients.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan domain.SessionEvent]struct{}
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan domain.SessionEvent]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a client. The returned function unregisters it and closes the channel.
func (sm *StreamManager) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, streamBuffer)

	sm.mu.Lock()
	sm.subscribers[ch] = struct{}{}
	sm.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			delete(sm.subscribers, ch)
			sm.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast never blocks: slow clients lose events.
func (sm *StreamManager) Broadcast(ev domain.SessionEvent) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping event", "session_id", ev.SessionID)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every session event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionEvent: func(_ context.Context, e *domain.SessionEvent) {
			sm.Broadcast(*e)
		},
	}
}
