package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceNoContext(t *testing.T) {
	score := OverlapConfidence{}.Score("question", "answer", nil)
	assert.InDelta(t, 0.1, score, 1e-9)
}

func TestConfidenceBounds(t *testing.T) {
	contexts := []string{"the deployment pipeline builds container images every night"}

	// full overlap still caps at 0.9
	high := OverlapConfidence{}.Score(
		"deployment pipeline builds container images",
		"the deployment pipeline builds container images every night",
		contexts)
	assert.LessOrEqual(t, high, 0.9)
	assert.Greater(t, high, 0.5)

	// zero overlap floors at 0.1
	low := OverlapConfidence{}.Score("quantum entanglement", "unrelated reply", contexts)
	assert.InDelta(t, 0.1, low, 1e-9)
}

func TestConfidenceHalvedOnUncertainty(t *testing.T) {
	contexts := []string{"the deployment pipeline builds container images"}
	question := "deployment pipeline builds images"

	certain := OverlapConfidence{}.Score(question, "the pipeline builds container images", contexts)
	hedged := OverlapConfidence{}.Score(question, "the pipeline builds container images, but it is unclear", contexts)

	assert.Less(t, hedged, certain)
}

func TestOverlapRatio(t *testing.T) {
	assert.Equal(t, 1.0, overlapRatio("alpha beta", "alpha beta gamma"))
	assert.Equal(t, 0.5, overlapRatio("alpha delta", "alpha beta gamma"))
	assert.Zero(t, overlapRatio("", "anything"))
	assert.Zero(t, overlapRatio("delta", ""))
}

func TestTermSetStripsPunctuation(t *testing.T) {
	set := termSet("Hello, world! (Really)")
	_, hello := set["hello"]
	_, world := set["world"]
	_, really := set["really"]
	assert.True(t, hello)
	assert.True(t, world)
	assert.True(t, really)
}
