package app

import "strings"

// ConfidenceScorer estimates how well an answer is supported by the
// retrieved context, in [0,1].
type ConfidenceScorer interface {
	Score(question, answer string, contexts []string) float64
}

var uncertaintyPhrases = []string{
	"i don't know",
	"i do not know",
	"unclear",
	"not enough information",
	"cannot determine",
	"could not find relevant information",
}

// OverlapConfidence is a cheap lexical heuristic: the average of
// question-context and answer-context term overlap, halved when the
// answer hedges, clamped to [0.1, 0.9]. No context pins it to 0.1.
type OverlapConfidence struct{}

func (OverlapConfidence) Score(question, answer string, contexts []string) float64 {
	if len(contexts) == 0 {
		return 0.1
	}

	combined := strings.Join(contexts, " ")
	score := (overlapRatio(question, combined) + overlapRatio(answer, combined)) / 2

	lower := strings.ToLower(answer)
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			score /= 2
			break
		}
	}

	if score < 0.1 {
		return 0.1
	}
	if score > 0.9 {
		return 0.9
	}
	return score
}

// overlapRatio is the fraction of text's distinct terms that appear in
// reference.
func overlapRatio(text, reference string) float64 {
	terms := termSet(text)
	if len(terms) == 0 {
		return 0
	}
	refTerms := termSet(reference)
	matched := 0
	for t := range terms {
		if _, ok := refTerms[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func termSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, ".,!?;:\"'()[]")
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
