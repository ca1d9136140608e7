package grading

// RoutedQuestion pairs a question with its classification and routing decision.
type RoutedQuestion struct {
	Question QuestionInput
	Decision RoutingDecision
}

// SubBatch is a group of like-complexity questions bound for one backend.
type SubBatch struct {
	Bucket    Bucket
	Method    Method
	Fallback  bool
	Questions []QuestionInput
}

// Partition groups routed questions into sub-batches with bucket-specific
// size limits. Output order is deterministic: simple, medium, complex, FIFO
// within each bucket.
func Partition(items []RoutedQuestion, sizes BatchSizes) []SubBatch {
	if sizes.Simple <= 0 {
		sizes.Simple = DefaultBatchSizes().Simple
	}
	if sizes.Medium <= 0 {
		sizes.Medium = DefaultBatchSizes().Medium
	}
	if sizes.Complex <= 0 {
		sizes.Complex = DefaultBatchSizes().Complex
	}

	limits := map[Bucket]int{
		BucketSimple:  sizes.Simple,
		BucketMedium:  sizes.Medium,
		BucketComplex: sizes.Complex,
	}

	batches := make([]SubBatch, 0)
	open := make(map[Bucket]int) // index into batches of the unfilled sub-batch per bucket

	for _, bucket := range []Bucket{BucketSimple, BucketMedium, BucketComplex} {
		open[bucket] = -1

		for _, item := range items {
			if item.Decision.Bucket != bucket {
				continue
			}

			index := open[bucket]
			if index >= 0 && sameBatch(batches[index], item.Decision) && len(batches[index].Questions) < limits[bucket] {
				batches[index].Questions = append(batches[index].Questions, item.Question)
				continue
			}

			batches = append(batches, SubBatch{
				Bucket:    bucket,
				Method:    item.Decision.Method,
				Fallback:  item.Decision.FallbackForced,
				Questions: []QuestionInput{item.Question},
			})
			open[bucket] = len(batches) - 1
		}
	}

	return batches
}

func sameBatch(batch SubBatch, decision RoutingDecision) bool {
	return batch.Method == decision.Method && batch.Fallback == decision.FallbackForced
}
