package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

var ErrScoreOutOfRange = errors.New("score must be in [0,1]")

type InsightService interface {
	// Record inserts a new insight version. An existing active insight for
	// the same (user, entity, insight_type) is deactivated and linked via
	// previous_version_id; history is never deleted.
	Record(ctx context.Context, insight *types.Insight) (*types.Insight, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Insight, error)
	ActiveForUser(ctx context.Context, userID uuid.UUID) ([]*types.Insight, error)
	SubmitFeedback(ctx context.Context, userID uuid.UUID, insightID uuid.UUID, feedbackType string, adjustedScore *float64) (*types.HRMFeedback, error)
}

type insightService struct {
	db       *gorm.DB
	log      *logger.Logger
	insights repos.InsightRepo
	feedback repos.HRMFeedbackRepo
	now      func() time.Time
}

func NewInsightService(db *gorm.DB, baseLog *logger.Logger, insights repos.InsightRepo, feedback repos.HRMFeedbackRepo) InsightService {
	return &insightService{
		db:       db,
		log:      baseLog.With("service", "InsightService"),
		insights: insights,
		feedback: feedback,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *insightService) Record(ctx context.Context, insight *types.Insight) (*types.Insight, error) {
	if insight == nil {
		return nil, fmt.Errorf("missing insight")
	}
	if insight.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if insight.EntityType == "" || insight.InsightType == "" {
		return nil, fmt.Errorf("missing entity_type or insight_type")
	}
	if insight.ConfidenceScore < 0 || insight.ConfidenceScore > 1 {
		return nil, fmt.Errorf("%w: confidence_score %v", ErrScoreOutOfRange, insight.ConfidenceScore)
	}
	if insight.ImpactScore < 0 || insight.ImpactScore > 1 {
		return nil, fmt.Errorf("%w: impact_score %v", ErrScoreOutOfRange, insight.ImpactScore)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := s.insights.GetActiveFor(ctx, tx, insight.UserID, insight.EntityType, insight.EntityID, insight.InsightType)
		if err != nil {
			return err
		}
		insight.IsActive = true
		insight.Version = 1
		insight.PreviousVersionID = nil
		if prev != nil {
			if err := s.insights.Deactivate(ctx, tx, prev.ID); err != nil {
				return err
			}
			insight.Version = prev.Version + 1
			prevID := prev.ID
			insight.PreviousVersionID = &prevID
		}
		_, err = s.insights.Create(ctx, tx, insight)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("insight recorded",
		"user_id", insight.UserID, "entity_type", insight.EntityType,
		"insight_type", insight.InsightType, "version", insight.Version)
	return insight, nil
}

func (s *insightService) GetByID(ctx context.Context, id uuid.UUID) (*types.Insight, error) {
	return s.insights.GetByID(ctx, nil, id)
}

func (s *insightService) ActiveForUser(ctx context.Context, userID uuid.UUID) ([]*types.Insight, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	return s.insights.ListActiveForUser(ctx, nil, userID, s.now())
}

func (s *insightService) SubmitFeedback(ctx context.Context, userID uuid.UUID, insightID uuid.UUID, feedbackType string, adjustedScore *float64) (*types.HRMFeedback, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	switch feedbackType {
	case types.FeedbackTypeAccurate, types.FeedbackTypeInaccurate, types.FeedbackTypeScoreAdjusted, types.FeedbackTypeDismissed:
	default:
		return nil, fmt.Errorf("unknown feedback type %q", feedbackType)
	}
	if adjustedScore != nil && (*adjustedScore < 0 || *adjustedScore > 1) {
		return nil, fmt.Errorf("%w: user_adjusted_score %v", ErrScoreOutOfRange, *adjustedScore)
	}

	insight, err := s.insights.GetByID(ctx, nil, insightID)
	if err != nil {
		return nil, err
	}
	if insight.UserID != userID {
		return nil, fmt.Errorf("insight %s does not belong to user", insightID)
	}

	original := insight.ConfidenceScore
	fb := &types.HRMFeedback{
		UserID:            userID,
		InsightID:         &insight.ID,
		FeedbackType:      feedbackType,
		OriginalScore:     &original,
		UserAdjustedScore: adjustedScore,
		AppliedRules:      datatypes.JSON(insight.ReasoningPath),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.feedback.Create(ctx, tx, fb); err != nil {
			return err
		}
		return s.insights.SetUserFeedback(ctx, tx, insight.ID, feedbackType)
	})
	if err != nil {
		return nil, err
	}
	return fb, nil
}
