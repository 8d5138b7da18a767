package worker

import "sync"

// Journal remembers which recipients a message has already reached, so a
// requeued delivery only retries the recipients that failed.
type Journal interface {
	Sent(msgID, to string) bool
	MarkSent(msgID, to string)
}

// MemoryJournal keeps the recipients of the last max message IDs and evicts
// the oldest first. It does not survive a restart.
type MemoryJournal struct {
	mu    sync.Mutex
	max   int
	order []string
	sent  map[string]map[string]struct{}
}

func NewMemoryJournal(max int) *MemoryJournal {
	if max <= 0 {
		max = 10000
	}
	return &MemoryJournal{max: max, sent: map[string]map[string]struct{}{}}
}

func (j *MemoryJournal) Sent(msgID, to string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.sent[msgID][to]
	return ok
}

func (j *MemoryJournal) MarkSent(msgID, to string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rcpts, ok := j.sent[msgID]
	if !ok {
		if len(j.order) >= j.max {
			delete(j.sent, j.order[0])
			j.order = j.order[1:]
		}
		rcpts = map[string]struct{}{}
		j.sent[msgID] = rcpts
		j.order = append(j.order, msgID)
	}
	rcpts[to] = struct{}{}
}
