package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealagent"
)

func TestStateStream_SubscribeStartsWithCurrent(t *testing.T) {
	s := newStateStream()
	s.publish(mealagent.PipelineState{RequestID: "r1", Phase: mealagent.PhaseInitialAnalysis, IsActive: true})

	ch, cancel := s.subscribe()
	defer cancel()

	got := <-ch
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, mealagent.PhaseInitialAnalysis, got.Phase)
}

func TestStateStream_SlowSubscriberSeesLatest(t *testing.T) {
	s := newStateStream()
	ch, cancel := s.subscribe()
	defer cancel()

	s.publish(mealagent.PipelineState{Phase: mealagent.PhaseInitialAnalysis, CurrentTool: mealagent.ToolInitialAnalysis})
	s.publish(mealagent.PipelineState{Phase: mealagent.PhaseEscalating, CurrentTool: mealagent.ToolDeepAnalysis})
	s.publish(mealagent.PipelineState{Phase: mealagent.PhaseComplete})

	got := <-ch
	assert.Equal(t, mealagent.PhaseComplete, got.Phase)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected buffered state %+v", extra)
	default:
	}
}

func TestStateStream_CancelClosesChannel(t *testing.T) {
	s := newStateStream()
	ch, cancel := s.subscribe()

	<-ch
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	s.publish(mealagent.PipelineState{Phase: mealagent.PhaseComplete})
	assert.Equal(t, mealagent.PhaseComplete, s.snapshot().Phase)
}

func TestStateStream_MultipleSubscribers(t *testing.T) {
	s := newStateStream()
	a, cancelA := s.subscribe()
	defer cancelA()
	b, cancelB := s.subscribe()
	defer cancelB()

	<-a
	<-b
	s.publish(mealagent.PipelineState{Phase: mealagent.PhaseFailed})

	require.Equal(t, mealagent.PhaseFailed, (<-a).Phase)
	require.Equal(t, mealagent.PhaseFailed, (<-b).Phase)
}

func TestOrchestrator_SubscribeObservesRun(t *testing.T) {
	client := &fakeClient{responses: map[mealagent.Tool]string{mealagent.ToolInitialAnalysis: banana}}
	o := newTestOrchestrator(client, Options{})

	ch, cancel := o.Subscribe()
	defer cancel()
	assert.Equal(t, mealagent.PhaseIdle, (<-ch).Phase)

	_, err := o.Analyze(t.Context(), request())
	require.NoError(t, err)

	final := <-ch
	assert.Equal(t, mealagent.PhaseComplete, final.Phase)
	assert.False(t, final.IsActive)
}
