package model

import (
	"encoding/json"
	"time"
)

// BatchQuestion is one question/expected-answer pair of an evaluation
// batch.
type BatchQuestion struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth,omitempty"`
}

// EvaluationBatch stores the aggregated result of a batch run. The
// per-metric averages are arithmetic means over TotalEvaluations
// questions.
type EvaluationBatch struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Name                string    `gorm:"size:256;not null" json:"name"`
	Questions           string    `gorm:"type:text;not null" json:"-"`
	AvgFaithfulness     float64   `json:"avg_faithfulness"`
	AvgAnswerRelevancy  float64   `json:"avg_answer_relevancy"`
	AvgContextPrecision float64   `json:"avg_context_precision"`
	AvgContextRecall    float64   `json:"avg_context_recall"`
	TotalEvaluations    int       `gorm:"not null" json:"total_evaluations"`
	CreatedAt           time.Time `json:"created_at"`
}

func (b *EvaluationBatch) QuestionList() []BatchQuestion {
	if b.Questions == "" {
		return nil
	}
	var questions []BatchQuestion
	_ = json.Unmarshal([]byte(b.Questions), &questions)
	return questions
}

func (b *EvaluationBatch) SetQuestions(questions []BatchQuestion) {
	if len(questions) == 0 {
		b.Questions = "[]"
		return
	}
	raw, _ := json.Marshal(questions)
	b.Questions = string(raw)
}
