package messaging

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_EachStageHasExactlyOneSuccessor(t *testing.T) {
	require.Len(t, Chain, 18)
	assert.Equal(t, StageImageAnalysis, Chain[0])
	assert.Equal(t, StageHandoff, Chain[len(Chain)-1])

	for i, s := range Chain[:len(Chain)-1] {
		next, ok := s.Next()
		require.True(t, ok, s)
		assert.Equal(t, Chain[i+1], next)
	}

	_, ok := StageHandoff.Next()
	assert.False(t, ok)
}

func TestChain_PrintSubchainOrder(t *testing.T) {
	next, _ := StagePolish.Next()
	assert.Equal(t, StageCover, next)
	next, _ = StageCover.Next()
	assert.Equal(t, StageInterior, next)
	next, _ = StageInterior.Next()
	assert.Equal(t, StageCMYK, next)
	next, _ = StageCMYK.Next()
	assert.Equal(t, StageAssembly, next)
	next, _ = StageAssembly.Next()
	assert.Equal(t, StageHandoff, next)
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("story.cmyk")
	require.NoError(t, err)
	assert.Equal(t, StageCMYK, s)
	assert.Equal(t, "story.cmyk.retry.2000ms", s.RetryQueueName(2*time.Second))
	assert.Equal(t, "story.cmyk.retry.1ms", s.RetryQueueName(0))
	assert.Equal(t, "story.cmyk.dlq", s.DeadLetterQueueName())

	_, err = ParseStage("story.unknown")
	assert.Error(t, err)
}

func TestDecodeStageJob(t *testing.T) {
	id := uuid.New()
	job, err := DecodeStageJob([]byte(`{"orderId":"` + id.String() + `","finalText":"ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, id, job.OrderID)

	_, err = DecodeStageJob([]byte(`{}`))
	assert.Error(t, err)
	_, err = DecodeStageJob([]byte(`not json`))
	assert.Error(t, err)
}
