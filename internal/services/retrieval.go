package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aurumlife/enrichment-backend/internal/logger"
	"github.com/aurumlife/enrichment-backend/internal/repos"
	"github.com/aurumlife/enrichment-backend/internal/types"
)

var (
	// ErrConsentDenied means the owning user has opted out of embedding the
	// entity's data category. A hard precondition failure: nothing is
	// indexed and nothing is synthesized at search time.
	ErrConsentDenied = errors.New("user has opted out of this data category")

	ErrEmptyContent = errors.New("empty source content")
)

const DefaultSearchLimit = 10

// SearchHit is one ranked retrieval result.
type SearchHit struct {
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	CreatedAt  time.Time      `json:"created_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IndexRequest carries one entity's source text into the semantic index.
type IndexRequest struct {
	UserID     uuid.UUID
	EntityType string
	EntityID   uuid.UUID
	Title      string
	Content    string
	Vector     []float32
}

type RetrievalService interface {
	// Index upserts the embedding for (entity_type, entity_id). Gated by the
	// owning user's consent flag for the data category; idempotent on
	// unchanged source text (same hash, no write). Returns whether a write
	// happened.
	Index(ctx context.Context, req IndexRequest) (bool, error)
	// Search ranks the user's embeddings against the query vector by cosine
	// similarity, strictly non-increasing, capped at limit.
	Search(ctx context.Context, queryVector []float32, userID uuid.UUID, limit int, dateRangeDays int) ([]*SearchHit, error)
	// Allowed reports whether the user consents to embedding the given
	// entity type. Hooks use it to skip embedding-queue dispatches.
	Allowed(ctx context.Context, userID uuid.UUID, entityType string) (bool, error)
}

type retrievalService struct {
	log        *logger.Logger
	embeddings repos.EmbeddingRepo
	prefs      repos.HRMPreferenceRepo
	now        func() time.Time
}

func NewRetrievalService(baseLog *logger.Logger, embeddings repos.EmbeddingRepo, prefs repos.HRMPreferenceRepo) RetrievalService {
	return &retrievalService{
		log:        baseLog.With("service", "RetrievalService"),
		embeddings: embeddings,
		prefs:      prefs,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// searchableEntityTypes are the heterogeneous sources merged by Search.
var searchableEntityTypes = []string{
	types.EmbeddingEntityJournalEntry,
	types.EmbeddingEntityReflection,
	types.EmbeddingEntityTask,
}

func (s *retrievalService) Allowed(ctx context.Context, userID uuid.UUID, entityType string) (bool, error) {
	pref, err := s.prefs.GetByUserID(ctx, nil, userID)
	if err != nil {
		return false, err
	}
	// No preference row means defaults: all categories consented.
	if pref == nil {
		return true, nil
	}
	switch entityType {
	case types.EmbeddingEntityJournalEntry, types.EmbeddingEntityReflection:
		return pref.EmbedJournalContent, nil
	case types.EmbeddingEntityTask:
		return pref.EmbedTaskContent, nil
	default:
		return false, fmt.Errorf("unknown embedding entity type %q", entityType)
	}
}

func (s *retrievalService) Index(ctx context.Context, req IndexRequest) (bool, error) {
	if req.UserID == uuid.Nil || req.EntityID == uuid.Nil {
		return false, fmt.Errorf("missing user_id or entity_id")
	}
	if strings.TrimSpace(req.Content) == "" {
		return false, ErrEmptyContent
	}
	allowed, err := s.Allowed(ctx, req.UserID, req.EntityType)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, fmt.Errorf("%w: %s", ErrConsentDenied, req.EntityType)
	}

	hash := sourceTextHash(req.Title, req.Content)
	existing, err := s.embeddings.GetByEntity(ctx, nil, req.EntityType, req.EntityID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.SourceTextHash == hash {
		s.log.Debug("embedding unchanged, skipping regeneration",
			"entity_type", req.EntityType, "entity_id", req.EntityID)
		return false, nil
	}

	rawVector, err := json.Marshal(req.Vector)
	if err != nil {
		return false, err
	}
	now := s.now()
	emb := &types.Embedding{
		UserID:         req.UserID,
		EntityType:     req.EntityType,
		EntityID:       req.EntityID,
		Title:          req.Title,
		Content:        req.Content,
		Vector:         datatypes.JSON(rawVector),
		SourceTextHash: hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.embeddings.Upsert(ctx, nil, emb); err != nil {
		return false, err
	}
	return true, nil
}

func (s *retrievalService) Search(ctx context.Context, queryVector []float32, userID uuid.UUID, limit int, dateRangeDays int) ([]*SearchHit, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("missing query vector")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	entityTypes := make([]string, 0, len(searchableEntityTypes))
	for _, et := range searchableEntityTypes {
		allowed, err := s.Allowed(ctx, userID, et)
		if err != nil {
			return nil, err
		}
		if allowed {
			entityTypes = append(entityTypes, et)
		}
	}
	if len(entityTypes) == 0 {
		return []*SearchHit{}, nil
	}

	var since *time.Time
	if dateRangeDays > 0 {
		cutoff := s.now().AddDate(0, 0, -dateRangeDays)
		since = &cutoff
	}
	candidates, err := s.embeddings.ListByUser(ctx, nil, userID, entityTypes, since)
	if err != nil {
		return nil, err
	}

	hits := make([]*SearchHit, 0, len(candidates))
	for _, cand := range candidates {
		var vec []float32
		if err := json.Unmarshal(cand.Vector, &vec); err != nil {
			s.log.Warn("bad stored vector, skipping candidate",
				"entity_type", cand.EntityType, "entity_id", cand.EntityID, "error", err)
			continue
		}
		sim := cosineSimilarity(queryVector, vec)
		hits = append(hits, &SearchHit{
			EntityType: cand.EntityType,
			EntityID:   cand.EntityID,
			Title:      cand.Title,
			Content:    snippet(cand.Content, 240),
			Similarity: sim,
			CreatedAt:  cand.CreatedAt,
			Metadata:   map[string]any{"source_text_hash": cand.SourceTextHash},
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func sourceTextHash(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

func snippet(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max]
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
