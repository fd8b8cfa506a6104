package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"docanalyzer/internal/ai"
	"docanalyzer/internal/model"
	"docanalyzer/internal/repository"
)

// Metrics are the four evaluation scores, each in [0,1].
type Metrics struct {
	Faithfulness     float64 `json:"faithfulness"`
	AnswerRelevancy  float64 `json:"answer_relevancy"`
	ContextPrecision float64 `json:"context_precision"`
	ContextRecall    float64 `json:"context_recall"`
}

// MetricScorer grades one answered question.
type MetricScorer interface {
	Score(ctx context.Context, question, answer string, contexts []string, groundTruth string) (Metrics, error)
}

type EvaluationResult struct {
	Question    string      `json:"question"`
	Answer      string      `json:"answer"`
	GroundTruth string      `json:"ground_truth,omitempty"`
	Metrics     Metrics     `json:"metrics"`
	Performance Performance `json:"performance"`
}

type EvalService struct {
	chat     *ChatService
	evalRepo *repository.EvaluationRepository
	scorer   MetricScorer
	fallback MetricScorer
}

// NewEvalService grades with scorer and falls back to the
// deterministic lexical scorer when it fails.
func NewEvalService(chat *ChatService, evalRepo *repository.EvaluationRepository, scorer MetricScorer) *EvalService {
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	return &EvalService{
		chat:     chat,
		evalRepo: evalRepo,
		scorer:   scorer,
		fallback: LexicalScorer{},
	}
}

// EvaluateSingle answers the question through the normal pipeline
// (without touching any chat session) and grades the result.
func (s *EvalService) EvaluateSingle(ctx context.Context, question, groundTruth string) (*EvaluationResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrInvalidInput
	}

	answer, err := s.chat.Answer(ctx, question, PromptStyleDefault)
	if err != nil {
		return nil, err
	}

	metrics, err := s.scorer.Score(ctx, question, answer.Answer, answer.Contexts, groundTruth)
	if err != nil {
		log.Warn().Err(err).Msg("metric scorer failed, falling back to lexical scoring")
		metrics, err = s.fallback.Score(ctx, question, answer.Answer, answer.Contexts, groundTruth)
		if err != nil {
			return nil, err
		}
	}

	return &EvaluationResult{
		Question:    question,
		Answer:      answer.Answer,
		GroundTruth: groundTruth,
		Metrics:     metrics,
		Performance: Performance{
			RetrievalTime:  answer.RetrievalTime,
			GenerationTime: answer.GenerationTime,
			TotalTime:      answer.RetrievalTime + answer.GenerationTime,
		},
	}, nil
}

// RunBatch evaluates the questions sequentially and stores the
// per-metric arithmetic means.
func (s *EvalService) RunBatch(ctx context.Context, name string, questions []model.BatchQuestion) (*model.EvaluationBatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	if len(questions) == 0 {
		return nil, ErrEmptyBatch
	}

	var sum Metrics
	for i, q := range questions {
		result, err := s.EvaluateSingle(ctx, q.Question, q.GroundTruth)
		if err != nil {
			return nil, fmt.Errorf("evaluate question %d failed: %w", i+1, err)
		}
		sum.Faithfulness += result.Metrics.Faithfulness
		sum.AnswerRelevancy += result.Metrics.AnswerRelevancy
		sum.ContextPrecision += result.Metrics.ContextPrecision
		sum.ContextRecall += result.Metrics.ContextRecall
	}

	n := float64(len(questions))
	batch := &model.EvaluationBatch{
		Name:                name,
		AvgFaithfulness:     sum.Faithfulness / n,
		AvgAnswerRelevancy:  sum.AnswerRelevancy / n,
		AvgContextPrecision: sum.ContextPrecision / n,
		AvgContextRecall:    sum.ContextRecall / n,
		TotalEvaluations:    len(questions),
	}
	batch.SetQuestions(questions)
	if err := s.evalRepo.Create(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *EvalService) ListBatches() ([]model.EvaluationBatch, error) {
	return s.evalRepo.List()
}

func (s *EvalService) GetBatch(id uint) (*model.EvaluationBatch, error) {
	batch, err := s.evalRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

// LexicalScorer grades with term-overlap heuristics. Deterministic, no
// network, the fallback and test scorer.
type LexicalScorer struct{}

func (LexicalScorer) Score(_ context.Context, question, answer string, contexts []string, groundTruth string) (Metrics, error) {
	combined := strings.Join(contexts, " ")

	var precision float64
	if len(contexts) > 0 {
		relevant := 0
		for _, c := range contexts {
			if overlapRatio(question, c) > 0 {
				relevant++
			}
		}
		precision = float64(relevant) / float64(len(contexts))
	}

	var recall float64
	if strings.TrimSpace(groundTruth) != "" {
		recall = overlapRatio(groundTruth, combined)
	}

	return Metrics{
		Faithfulness:     overlapRatio(answer, combined),
		AnswerRelevancy:  overlapRatio(answer, question),
		ContextPrecision: precision,
		ContextRecall:    recall,
	}, nil
}

// LLMScorer grades with one numeric-score prompt per metric.
type LLMScorer struct {
	llm LLMClient
	cfg ai.ChatConfig
}

func NewLLMScorer(llm LLMClient, cfg ai.ChatConfig) *LLMScorer {
	return &LLMScorer{llm: llm, cfg: cfg}
}

func (s *LLMScorer) Score(ctx context.Context, question, answer string, contexts []string, groundTruth string) (Metrics, error) {
	combined := strings.Join(contexts, "\n---\n")

	faithfulness, err := s.judge(ctx, fmt.Sprintf(
		"Rate from 0.0 to 1.0 how faithful the answer is to the context, where 1.0 means every claim "+
			"in the answer is supported by the context.\n\nContext:\n%s\n\nAnswer:\n%s", combined, answer))
	if err != nil {
		return Metrics{}, err
	}
	relevancy, err := s.judge(ctx, fmt.Sprintf(
		"Rate from 0.0 to 1.0 how relevant the answer is to the question, where 1.0 means it addresses "+
			"the question directly and completely.\n\nQuestion:\n%s\n\nAnswer:\n%s", question, answer))
	if err != nil {
		return Metrics{}, err
	}
	precision, err := s.judge(ctx, fmt.Sprintf(
		"Rate from 0.0 to 1.0 what fraction of the context passages are relevant to the question.\n\n"+
			"Question:\n%s\n\nContext:\n%s", question, combined))
	if err != nil {
		return Metrics{}, err
	}

	var recall float64
	if strings.TrimSpace(groundTruth) != "" {
		recall, err = s.judge(ctx, fmt.Sprintf(
			"Rate from 0.0 to 1.0 how much of the expected answer can be derived from the context, where "+
				"1.0 means all of it.\n\nExpected answer:\n%s\n\nContext:\n%s", groundTruth, combined))
		if err != nil {
			return Metrics{}, err
		}
	}

	return Metrics{
		Faithfulness:     faithfulness,
		AnswerRelevancy:  relevancy,
		ContextPrecision: precision,
		ContextRecall:    recall,
	}, nil
}

func (s *LLMScorer) judge(ctx context.Context, prompt string) (float64, error) {
	raw, err := s.llm.Complete(ctx, s.cfg, []ai.ChatMessage{
		{Role: "system", Content: "You are a strict evaluator. Reply with a single number between 0.0 and 1.0, nothing else."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return 0, fmt.Errorf("llm judge failed: %w", err)
	}
	return parseScore(raw)
}

// parseScore extracts the first float in the reply and clamps it to
// [0,1].
func parseScore(raw string) (float64, error) {
	for _, field := range strings.Fields(raw) {
		field = strings.Trim(field, ".,;:%")
		score, err := strconv.ParseFloat(field, 64)
		if err != nil {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		return score, nil
	}
	return 0, fmt.Errorf("no numeric score in judge reply %q", raw)
}
