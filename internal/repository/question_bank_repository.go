package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/coaching-console/internal/models"
)

// QuestionBankRepository reads the subject/chapter/topic/question hierarchy. Each list
// carries the count of immediate children only.
type QuestionBankRepository struct {
	db *sqlx.DB
}

// NewQuestionBankRepository constructs the repository.
func NewQuestionBankRepository(db *sqlx.DB) *QuestionBankRepository {
	return &QuestionBankRepository{db: db}
}

type questionRow struct {
	ID            string         `db:"id"`
	TopicID       string         `db:"topic_id"`
	Text          string         `db:"question_text"`
	Type          sql.NullString `db:"question_type"`
	Difficulty    sql.NullString `db:"difficulty"`
	Options       pq.StringArray `db:"options"`
	CorrectAnswer sql.NullString `db:"correct_answer"`
	Explanation   sql.NullString `db:"explanation"`
	Marks         sql.NullInt64  `db:"marks"`
	IsFavorite    bool           `db:"is_favorite"`
}

func (q questionRow) toModel() models.Question {
	return models.Question{
		ID:            q.ID,
		TopicID:       q.TopicID,
		Text:          q.Text,
		Type:          models.NormalizeQuestionType(q.Type.String),
		Difficulty:    models.NormalizeDifficulty(q.Difficulty.String),
		Options:       []string(q.Options),
		CorrectAnswer: q.CorrectAnswer.String,
		Explanation:   q.Explanation.String,
		Marks:         int(q.Marks.Int64),
		IsFavorite:    q.IsFavorite,
	}
}

// ListSubjects returns a class's subjects with their chapter counts.
func (r *QuestionBankRepository) ListSubjects(ctx context.Context, classID string) ([]models.Subject, error) {
	const query = `SELECT s.id, s.class_id, s.name, COUNT(c.id) AS chapter_count
        FROM subjects s LEFT JOIN chapters c ON c.subject_id = s.id
        WHERE s.class_id = $1 GROUP BY s.id, s.class_id, s.name ORDER BY s.name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, classID); err != nil {
		return nil, translateError(err, "list subjects")
	}
	return subjects, nil
}

// ListChapters returns a subject's chapters with their topic counts.
func (r *QuestionBankRepository) ListChapters(ctx context.Context, subjectID string) ([]models.Chapter, error) {
	const query = `SELECT c.id, c.subject_id, c.name, COUNT(t.id) AS topic_count
        FROM chapters c LEFT JOIN topics t ON t.chapter_id = c.id
        WHERE c.subject_id = $1 GROUP BY c.id, c.subject_id, c.name ORDER BY c.name ASC`
	var chapters []models.Chapter
	if err := r.db.SelectContext(ctx, &chapters, query, subjectID); err != nil {
		return nil, translateError(err, "list chapters")
	}
	return chapters, nil
}

// ListTopics returns a chapter's topics with their question counts.
func (r *QuestionBankRepository) ListTopics(ctx context.Context, chapterID string) ([]models.Topic, error) {
	const query = `SELECT t.id, t.chapter_id, t.name, COUNT(q.id) AS question_count
        FROM topics t LEFT JOIN questions q ON q.topic_id = t.id
        WHERE t.chapter_id = $1 GROUP BY t.id, t.chapter_id, t.name ORDER BY t.name ASC`
	var topics []models.Topic
	if err := r.db.SelectContext(ctx, &topics, query, chapterID); err != nil {
		return nil, translateError(err, "list topics")
	}
	return topics, nil
}

// ListQuestions returns a topic's questions with difficulty and type normalised.
func (r *QuestionBankRepository) ListQuestions(ctx context.Context, topicID string) ([]models.Question, error) {
	const query = `SELECT id, topic_id, question_text, question_type, difficulty, options, correct_answer, explanation, marks, is_favorite
        FROM questions WHERE topic_id = $1 ORDER BY created_at ASC, id ASC`
	var rows []questionRow
	if err := r.db.SelectContext(ctx, &rows, query, topicID); err != nil {
		return nil, translateError(err, "list questions")
	}
	questions := make([]models.Question, 0, len(rows))
	for _, row := range rows {
		questions = append(questions, row.toModel())
	}
	return questions, nil
}

// SetQuestionFavorite updates the favorite flag of one question.
func (r *QuestionBankRepository) SetQuestionFavorite(ctx context.Context, id string, favorite bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE questions SET is_favorite = $1 WHERE id = $2", favorite, id)
	if err != nil {
		return translateError(err, "set question favorite")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("set question favorite")
	}
	return nil
}
