package grading

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func routed(id string, bucket Bucket, method Method, fallback bool) RoutedQuestion {
	return RoutedQuestion{
		Question: QuestionInput{ID: id, PointsPossible: 1},
		Decision: RoutingDecision{Bucket: bucket, Method: method, FallbackForced: fallback},
	}
}

func TestPartitionOrdersBucketsAndKeepsFIFO(t *testing.T) {
	items := []RoutedQuestion{
		routed("c1", BucketComplex, MethodRemoteBatch, false),
		routed("s1", BucketSimple, MethodRuleExact, false),
		routed("m1", BucketMedium, MethodLocalClassifier, false),
		routed("s2", BucketSimple, MethodRuleExact, false),
		routed("c2", BucketComplex, MethodRemoteBatch, false),
	}

	batches := Partition(items, DefaultBatchSizes())
	require.Len(t, batches, 3)

	require.Equal(t, BucketSimple, batches[0].Bucket)
	require.Equal(t, []string{"s1", "s2"}, questionIDs(batches[0]))

	require.Equal(t, BucketMedium, batches[1].Bucket)
	require.Equal(t, []string{"m1"}, questionIDs(batches[1]))

	require.Equal(t, BucketComplex, batches[2].Bucket)
	require.Equal(t, []string{"c1", "c2"}, questionIDs(batches[2]))
}

func TestPartitionSplitsAtBucketLimit(t *testing.T) {
	items := make([]RoutedQuestion, 0, 19)
	for i := 0; i < 19; i++ {
		items = append(items, routed(fmt.Sprintf("c%d", i), BucketComplex, MethodRemoteBatch, false))
	}

	batches := Partition(items, BatchSizes{Simple: 20, Medium: 15, Complex: 8})
	require.Len(t, batches, 3)
	require.Len(t, batches[0].Questions, 8)
	require.Len(t, batches[1].Questions, 8)
	require.Len(t, batches[2].Questions, 3)

	// Order is preserved across the split.
	require.Equal(t, "c0", batches[0].Questions[0].ID)
	require.Equal(t, "c8", batches[1].Questions[0].ID)
	require.Equal(t, "c16", batches[2].Questions[0].ID)
}

func TestPartitionSeparatesFallbackForcedGroups(t *testing.T) {
	items := []RoutedQuestion{
		routed("a", BucketComplex, MethodRemoteBatch, false),
		routed("b", BucketComplex, MethodLocalClassifier, true),
		routed("c", BucketComplex, MethodLocalClassifier, true),
	}

	batches := Partition(items, DefaultBatchSizes())
	require.Len(t, batches, 2)
	require.False(t, batches[0].Fallback)
	require.True(t, batches[1].Fallback)
	require.Equal(t, []string{"b", "c"}, questionIDs(batches[1]))
}

func TestPartitionEmptyInput(t *testing.T) {
	require.Empty(t, Partition(nil, DefaultBatchSizes()))
}

func TestPartitionDefaultsNonPositiveSizes(t *testing.T) {
	items := make([]RoutedQuestion, 0, 25)
	for i := 0; i < 25; i++ {
		items = append(items, routed(fmt.Sprintf("s%d", i), BucketSimple, MethodRuleExact, false))
	}

	batches := Partition(items, BatchSizes{})
	require.Len(t, batches, 2)
	require.Len(t, batches[0].Questions, 20)
	require.Len(t, batches[1].Questions, 5)
}

func questionIDs(batch SubBatch) []string {
	ids := make([]string, 0, len(batch.Questions))
	for _, question := range batch.Questions {
		ids = append(ids, question.ID)
	}
	return ids
}
