package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/query"
	"github.com/noah-isme/coaching-console/internal/questionbank"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

// QuestionBankPath is a selection through the hierarchy. Levels below the first empty
// id are not loaded.
type QuestionBankPath struct {
	ClassID   string `json:"class_id" form:"class_id"`
	SubjectID string `json:"subject_id" form:"subject_id"`
	ChapterID string `json:"chapter_id" form:"chapter_id"`
	TopicID   string `json:"topic_id" form:"topic_id"`
}

func (p QuestionBankPath) ids() []string {
	ids := []string{
		strings.TrimSpace(p.ClassID),
		strings.TrimSpace(p.SubjectID),
		strings.TrimSpace(p.ChapterID),
		strings.TrimSpace(p.TopicID),
	}
	for i, id := range ids {
		if id == "" {
			return ids[:i]
		}
	}
	return ids
}

// QuestionBankService browses the question bank. Every call drives a short-lived
// Resolver over the shared cache, so repeated paths are served from cache.
type QuestionBankService struct {
	core    Core
	gateway questionbank.Gateway
	fanout  int
	logger  *zap.Logger
}

// NewQuestionBankService constructs a QuestionBankService.
func NewQuestionBankService(core Core, gateway questionbank.Gateway, fanout int, logger *zap.Logger) *QuestionBankService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionBankService{core: core, gateway: gateway, fanout: fanout, logger: logger}
}

// Browse resolves every level named by path, top down.
func (s *QuestionBankService) Browse(ctx context.Context, path QuestionBankPath) (questionbank.Snapshot, error) {
	ids := path.ids()
	if len(ids) == 0 {
		return questionbank.Snapshot{}, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "class is required"),
			map[string]string{"class_id": "required"})
	}
	if s.core.Identity != nil && !s.core.Identity.IsAuthenticated() {
		return questionbank.Snapshot{}, errSignedOut
	}

	r := s.resolver()
	defer r.Close()

	selects := []func(string){r.SelectClass, r.SelectSubject, r.SelectChapter, r.SelectTopic}
	for i, id := range ids {
		selects[i](id)
	}
	snap := r.Snapshot()
	for i := range ids {
		var err error
		snap, err = r.Load(ctx, questionbank.Level(i))
		if err != nil {
			s.logger.Debug("question bank browse stopped", zap.Stringer("level", questionbank.Level(i)), zap.Error(err))
			return snap, appErrors.FromError(err)
		}
	}
	return snap, nil
}

// SetFavorite flags a question of topicID as favorite or not.
func (s *QuestionBankService) SetFavorite(ctx context.Context, topicID, questionID string, favorite bool) (models.Question, error) {
	topicID, questionID = strings.TrimSpace(topicID), strings.TrimSpace(questionID)
	if topicID == "" || questionID == "" {
		return models.Question{}, appErrors.Clone(appErrors.ErrValidation, "topic and question are required")
	}
	if s.core.Identity != nil && !s.core.Identity.IsAuthenticated() {
		return models.Question{}, errSignedOut
	}
	q := models.Question{ID: questionID, TopicID: topicID}
	if cached, ok := query.As[[]models.Question](s.core.Cache.Peek(questionbank.QuestionsKey(topicID))); ok {
		for _, candidate := range cached {
			if candidate.ID == questionID {
				q = candidate
				break
			}
		}
	}

	r := s.resolver()
	defer r.Close()
	return r.SetFavorite(ctx, q, favorite)
}

func (s *QuestionBankService) resolver() *questionbank.Resolver {
	return questionbank.NewResolver(s.gateway, s.core.Cache, s.core.Pipeline, questionbank.Config{
		Options: s.core.options(),
		Fanout:  s.fanout,
		Logger:  s.logger,
	})
}
