package session

import (
	"context"
	"testing"
)

func TestWorkerRunsSessionsAndDisconnects(t *testing.T) {
	configs := &configSourceStub{config: validConfig()}
	orchestrator := newTestOrchestrator(configs, &assemblerStub{pipeline: &pipelineStub{}})
	worker := NewWorker(orchestrator, nil)

	rooms := []*roomStub{
		newRoomStub(`{"agentId":"a1","sessionId":"s1"}`),
		newRoomStub(`{"agentId":"a2","sessionId":"s2"}`),
	}
	for _, room := range rooms {
		room.connected.Store(false)
		worker.Dispatch(context.Background(), Job{Room: room})
	}
	worker.Wait()

	for _, room := range rooms {
		if !room.disconnected.Load() {
			t.Fatalf("expected room to be disconnected after its session")
		}
	}
	if worker.Active() != 0 {
		t.Fatalf("expected no active sessions, got %d", worker.Active())
	}
	if len(configs.notifies) != 2 {
		t.Fatalf("expected both sessions to be ended, got %v", configs.notifies)
	}
}
