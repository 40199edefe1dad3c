package sse

import (
	"github.com/google/uuid"

	"github.com/yungbote/masteryloop-backend/internal/orchestrator"
)

// HubSink fans orchestrator turn events out to the learner's SSE channel.
type HubSink struct {
	hub *SSEHub
}

func NewHubSink(hub *SSEHub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Publish(learnerID uuid.UUID, ev orchestrator.Event) {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.Broadcast(SSEMessage{
		Channel: LearnerChannel(learnerID),
		Event:   ev.Type,
		Data:    ev,
	})
}
