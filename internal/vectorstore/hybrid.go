package vectorstore

import (
	"sort"
	"strings"
)

// tokenize lowercases and splits on whitespace. Both query and chunk
// text go through the same tokenizer so term matching is symmetric.
func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// keywordScore measures lexical overlap between query terms and a
// chunk. Term frequency of matched query terms is scaled by the
// Jaccard-like ratio |q| / |q ∪ d|, so short focused chunks that cover
// the query beat long chunks that mention it in passing.
func keywordScore(queryTerms []string, content string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docTerms := tokenize(content)
	if len(docTerms) == 0 {
		return 0
	}

	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}

	matches := 0
	for _, t := range docTerms {
		for _, q := range queryTerms {
			if t == q {
				matches++
				break
			}
		}
	}
	if matches == 0 {
		return 0
	}

	union := make(map[string]struct{}, len(docSet)+len(queryTerms))
	for t := range docSet {
		union[t] = struct{}{}
	}
	for _, q := range queryTerms {
		union[q] = struct{}{}
	}

	tf := float64(matches) / float64(len(docTerms))
	return tf * float64(len(queryTerms)) / float64(len(union))
}

// normalizeByMax rescales scores so the best candidate gets 1.0. A
// zero or empty set is left untouched.
func normalizeByMax(scores map[string]float64) {
	var max float64
	for _, v := range scores {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return
	}
	for k, v := range scores {
		scores[k] = v / max
	}
}

// blendScores combines normalized semantic and keyword scores with
// weight alpha on the semantic side. Candidates present in only one
// set contribute a zero for the missing side.
func blendScores(alpha float64, semantic, keyword map[string]float64) map[string]float64 {
	blended := make(map[string]float64, len(semantic)+len(keyword))
	for id, s := range semantic {
		blended[id] = alpha * s
	}
	for id, k := range keyword {
		blended[id] += (1 - alpha) * k
	}
	return blended
}

// sortResults orders by score descending; ties break on chunk index,
// then vector ID, so repeated queries return a stable order even for
// equal-scoring chunks of different documents.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].VectorID < results[j].VectorID
	})
}
