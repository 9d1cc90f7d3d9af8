package models

import "strings"

// Difficulty grades a question.
type Difficulty string

const (
	DifficultyMedium Difficulty = "Medium"
	DifficultyEasy   Difficulty = "Easy"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists the accepted values; the first member is the default.
var Difficulties = []Difficulty{DifficultyMedium, DifficultyEasy, DifficultyHard}

// QuestionType classifies a question.
type QuestionType string

const (
	QuestionTypeMCQ        QuestionType = "MCQ"
	QuestionTypeShort      QuestionType = "Short Answer"
	QuestionTypeLong       QuestionType = "Long Answer"
	QuestionTypeTrueFalse  QuestionType = "True/False"
	QuestionTypeFillBlanks QuestionType = "Fill in the Blank"
)

// QuestionTypes lists the accepted values; the first member is the default.
var QuestionTypes = []QuestionType{QuestionTypeMCQ, QuestionTypeShort, QuestionTypeLong, QuestionTypeTrueFalse, QuestionTypeFillBlanks}

// NormalizeDifficulty maps stored text onto the whitelist, defaulting to Medium.
func NormalizeDifficulty(raw string) Difficulty {
	raw = strings.TrimSpace(raw)
	for _, d := range Difficulties {
		if strings.EqualFold(raw, string(d)) {
			return d
		}
	}
	return Difficulties[0]
}

// NormalizeQuestionType maps stored text onto the whitelist, defaulting to MCQ.
func NormalizeQuestionType(raw string) QuestionType {
	raw = strings.TrimSpace(raw)
	for _, t := range QuestionTypes {
		if strings.EqualFold(raw, string(t)) {
			return t
		}
	}
	return QuestionTypes[0]
}

// Subject belongs to a class. Counts are rolled up from fetched chapters.
type Subject struct {
	ID            string `db:"id" json:"id"`
	ClassID       string `db:"class_id" json:"class_id"`
	Name          string `db:"name" json:"name"`
	ChapterCount  int    `db:"chapter_count" json:"chapter_count"`
	QuestionCount int    `db:"-" json:"question_count"`
}

// Chapter belongs to a subject. Counts are rolled up from fetched topics.
type Chapter struct {
	ID            string `db:"id" json:"id"`
	SubjectID     string `db:"subject_id" json:"subject_id"`
	Name          string `db:"name" json:"name"`
	TopicCount    int    `db:"topic_count" json:"topic_count"`
	QuestionCount int    `db:"-" json:"question_count"`
}

// Topic belongs to a chapter and carries the count of its questions.
type Topic struct {
	ID            string `db:"id" json:"id"`
	ChapterID     string `db:"chapter_id" json:"chapter_id"`
	Name          string `db:"name" json:"name"`
	QuestionCount int    `db:"question_count" json:"question_count"`
}

// Question is a leaf of the question bank.
type Question struct {
	ID            string       `json:"id"`
	TopicID       string       `json:"topic_id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	Marks         int          `json:"marks"`
	IsFavorite    bool         `json:"is_favorite"`
}
