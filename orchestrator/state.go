package orchestrator

import (
	"sync"

	"mealagent"
)

// stateStream holds the latest PipelineState and fans it out to subscribers.
// Each subscriber has a one-slot buffer that always holds the newest state, so a slow
// observer skips intermediate states and never blocks the pipeline.
type stateStream struct {
	mu      sync.Mutex
	current mealagent.PipelineState
	subs    map[int]chan mealagent.PipelineState
	next    int
}

func newStateStream() *stateStream {
	return &stateStream{
		current: idleState(""),
		subs:    make(map[int]chan mealagent.PipelineState),
	}
}

func idleState(requestID string) mealagent.PipelineState {
	return mealagent.PipelineState{RequestID: requestID, Phase: mealagent.PhaseIdle}
}

func (s *stateStream) publish(st mealagent.PipelineState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = st
	for _, ch := range s.subs {
		deliverLatest(ch, st)
	}
}

func (s *stateStream) snapshot() mealagent.PipelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *stateStream) subscribe() (<-chan mealagent.PipelineState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan mealagent.PipelineState, 1)
	ch <- s.current
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// deliverLatest replaces whatever is buffered in ch with st. Callers hold the stream lock,
// so nothing else sends on ch concurrently.
func deliverLatest(ch chan mealagent.PipelineState, st mealagent.PipelineState) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}
