package engine

import (
	"sync"
	"time"
)

const subscriberBuffer = 32

// CommitEvent is published after an action is appended to a session history.
type CommitEvent struct {
	SessionID   string         `json:"session_id"`
	Seq         int            `json:"seq"`
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments"`
	Output      any            `json:"output"`
	FloatFields []string       `json:"float_fields,omitempty"`
	At          time.Time      `json:"at"`
}

type subscriber struct {
	session string
	ch      chan CommitEvent
}

type broker struct {
	mu     sync.RWMutex
	next   int
	subs   map[int]subscriber
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]subscriber)}
}

// subscribe registers a subscriber. An empty sessionID receives every event.
func (b *broker) subscribe(sessionID string) (<-chan CommitEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan CommitEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = subscriber{session: sessionID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
}

// publish delivers ev without blocking and returns how many subscribers
// missed it because their buffer was full.
func (b *broker) publish(ev CommitEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, s := range b.subs {
		if s.session != "" && s.session != ev.SessionID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	b.closed = true
}
