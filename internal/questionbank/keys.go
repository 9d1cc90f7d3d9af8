package questionbank

import (
	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/query"
)

// Cache keys of the question bank levels.
func SubjectsKey(classID string) string    { return query.Key("qb:subjects", classID) }
func ChaptersKey(subjectID string) string  { return query.Key("qb:chapters", subjectID) }
func TopicsKey(chapterID string) string    { return query.Key("qb:topics", chapterID) }
func QuestionsKey(topicID string) string   { return query.Key("qb:questions", topicID) }
func QuestionKey(questionID string) string { return query.Key("qb:question", questionID) }

// favoriteInList flips the favorite flag of one question in a cached topic list. The
// list is copied so readers holding the previous value are unaffected.
func favoriteInList(id string, favorite bool) func(old any, ok bool) (any, bool) {
	return func(old any, ok bool) (any, bool) {
		questions, isList := old.([]models.Question)
		if !ok || !isList {
			return nil, false
		}
		idx := -1
		for i := range questions {
			if questions[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, false
		}
		next := make([]models.Question, len(questions))
		copy(next, questions)
		next[idx].IsFavorite = favorite
		return next, true
	}
}

// favoriteSingle flips the flag of a cached single question.
func favoriteSingle(favorite bool) func(old any, ok bool) (any, bool) {
	return func(old any, ok bool) (any, bool) {
		question, isQuestion := old.(models.Question)
		if !ok || !isQuestion {
			return nil, false
		}
		question.IsFavorite = favorite
		return question, true
	}
}
