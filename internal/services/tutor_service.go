package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/masteryloop-backend/internal/apierr"
	"github.com/yungbote/masteryloop-backend/internal/kgraph"
	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/orchestrator"
	"github.com/yungbote/masteryloop-backend/internal/scheduler"
)

// TutorService is the transport-facing facade over the orchestrator: it
// serializes turns per learner and maps loop errors onto API errors.
type TutorService interface {
	StartSession(ctx context.Context, learnerID uuid.UUID) (*orchestrator.TurnResult, *apierr.Error)
	StartDiagnostic(ctx context.Context, learnerID uuid.UUID) (*orchestrator.TurnResult, *apierr.Error)
	HandleResponse(ctx context.Context, learnerID, sessionID uuid.UUID, response string, confidence *float64) (*orchestrator.TurnResult, *apierr.Error)
	Resume(ctx context.Context, learnerID, sessionID uuid.UUID) (*orchestrator.TurnResult, *apierr.Error)
	DueReviews(ctx context.Context, learnerID uuid.UUID, limit int) ([]scheduler.DueReview, *apierr.Error)
	PolicyStats(ctx context.Context, learnerID uuid.UUID) (any, *apierr.Error)
	PathPlan(ctx context.Context, learnerID uuid.UUID) ([]kgraph.PathStep, *apierr.Error)
	Concepts() []*kgraph.Concept
}

type tutorService struct {
	orch   *orchestrator.Orchestrator
	store  *TutorStore
	locker SessionLocker
	graph  *kgraph.Graph
	log    *logger.Logger
}

func NewTutorService(
	orch *orchestrator.Orchestrator,
	store *TutorStore,
	locker SessionLocker,
	graph *kgraph.Graph,
	baseLog *logger.Logger,
) TutorService {
	return &tutorService{
		orch:   orch,
		store:  store,
		locker: locker,
		graph:  graph,
		log:    baseLog.With("service", "TutorService"),
	}
}

func (s *tutorService) StartSession(ctx context.Context, learnerID uuid.UUID) (*orchestrator.TurnResult, *apierr.Error) {
	release, err := s.locker.Acquire(ctx, learnerID)
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	res, err := s.orch.StartSession(ctx, learnerID)
	if err != nil {
		return nil, s.mapTurnError("start session", learnerID, err)
	}
	return res, nil
}

func (s *tutorService) StartDiagnostic(ctx context.Context, learnerID uuid.UUID) (*orchestrator.TurnResult, *apierr.Error) {
	release, err := s.locker.Acquire(ctx, learnerID)
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	res, err := s.orch.StartDiagnostic(ctx, learnerID)
	if err != nil {
		return nil, s.mapTurnError("start diagnostic", learnerID, err)
	}
	return res, nil
}

func (s *tutorService) HandleResponse(ctx context.Context, learnerID, sessionID uuid.UUID, response string, confidence *float64) (*orchestrator.TurnResult, *apierr.Error) {
	if response == "" {
		return nil, apierr.New(http.StatusBadRequest, "empty_response", errors.New("learner response is required"))
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return nil, apierr.New(http.StatusBadRequest, "invalid_confidence", errors.New("confidence must be within [0,1]"))
	}

	release, err := s.locker.Acquire(ctx, learnerID)
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	res, err := s.orch.HandleResponse(ctx, learnerID, sessionID, response, confidence)
	if err != nil {
		return nil, s.mapTurnError("handle response", learnerID, err)
	}
	return res, nil
}

func (s *tutorService) Resume(ctx context.Context, learnerID, sessionID uuid.UUID) (*orchestrator.TurnResult, *apierr.Error) {
	release, err := s.locker.Acquire(ctx, learnerID)
	if err != nil {
		return nil, lockError(err)
	}
	defer release()

	res, err := s.orch.Resume(ctx, learnerID, sessionID)
	if err != nil {
		return nil, s.mapTurnError("resume session", learnerID, err)
	}
	return res, nil
}

func (s *tutorService) DueReviews(ctx context.Context, learnerID uuid.UUID, limit int) ([]scheduler.DueReview, *apierr.Error) {
	snap, err := s.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "snapshot_load_failed", err)
	}
	items := make(map[string]scheduler.ReviewItem, len(snap.Records))
	for id, rec := range snap.Records {
		items[id] = rec.Review
	}
	return scheduler.DueQueue(items, time.Now().UTC(), limit), nil
}

func (s *tutorService) PolicyStats(ctx context.Context, learnerID uuid.UUID) (any, *apierr.Error) {
	snap, err := s.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "snapshot_load_failed", err)
	}
	return snap.Policy.Snapshot(), nil
}

func (s *tutorService) PathPlan(ctx context.Context, learnerID uuid.UUID) ([]kgraph.PathStep, *apierr.Error) {
	snap, err := s.store.LoadSnapshot(ctx, learnerID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "snapshot_load_failed", err)
	}
	mastered := snap.MasteredSet()
	velocity := float64(2*len(mastered)) / float64(len(snap.Records)+1)
	return s.graph.PathPlanWithEstimates(mastered, velocity), nil
}

func (s *tutorService) Concepts() []*kgraph.Concept {
	return s.graph.All()
}

func lockError(err error) *apierr.Error {
	if errors.Is(err, ErrLearnerBusy) {
		return apierr.New(http.StatusConflict, "turn_in_progress", err)
	}
	return apierr.New(http.StatusInternalServerError, "lock_failed", err)
}

func (s *tutorService) mapTurnError(op string, learnerID uuid.UUID, err error) *apierr.Error {
	switch {
	case errors.Is(err, orchestrator.ErrSessionConflict):
		return apierr.New(http.StatusConflict, "session_conflict", err)
	case errors.Is(err, orchestrator.ErrNoSession):
		return apierr.New(http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		return apierr.New(http.StatusUnprocessableEntity, "invalid_transition", err)
	case errors.Is(err, orchestrator.ErrContentUnavailable):
		return apierr.New(http.StatusBadGateway, "content_unavailable", err)
	default:
		s.log.Error("turn failed", "op", op, "learnerID", learnerID, "error", err)
		return apierr.New(http.StatusInternalServerError, "turn_failed", err)
	}
}
