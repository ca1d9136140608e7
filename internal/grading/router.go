package grading

import (
	"fmt"

	"github.com/audeo-edu/intelligrade-api/pkg/breaker"
)

// RoutingPolicy carries the configuration the router decides over.
type RoutingPolicy struct {
	EscalationThreshold float64
}

// RoutingDecision describes which backend should grade a question and why.
// Derived, never persisted on its own.
type RoutingDecision struct {
	Method         Method  `json:"method"`
	Reasoning      string  `json:"reasoning"`
	Complexity     float64 `json:"complexity"`
	Bucket         Bucket  `json:"bucket"`
	FallbackForced bool    `json:"fallback_forced"`
}

// Route is a pure decision function over (complexity, breaker state, policy).
// It never calls a backend. An open remote circuit forces any remote-bound
// question onto the local classifier; circuit-open takes precedence over the
// low-confidence escalation path.
func Route(complexity Complexity, remoteState breaker.State, policy RoutingPolicy) RoutingDecision {
	decision := RoutingDecision{
		Complexity: complexity.Score,
		Bucket:     complexity.Bucket,
	}

	switch complexity.Bucket {
	case BucketSimple:
		decision.Method = MethodRuleExact
		decision.Reasoning = "simple question: rule matcher, exact then flexible"
	case BucketMedium:
		if remoteState == breaker.StateOpen {
			decision.Method = MethodLocalClassifier
			decision.FallbackForced = true
			decision.Reasoning = "remote circuit open: local classifier without escalation"
			break
		}
		decision.Method = MethodLocalClassifier
		decision.Reasoning = fmt.Sprintf("medium question: local classifier, escalate below %.2f confidence", policy.EscalationThreshold)
	case BucketComplex:
		if remoteState == breaker.StateOpen {
			decision.Method = MethodLocalClassifier
			decision.FallbackForced = true
			decision.Reasoning = "remote circuit open: forced local classifier fallback"
			break
		}
		decision.Method = MethodRemoteBatch
		decision.Reasoning = "complex question: remote model, batched when possible"
	default:
		decision.Method = MethodLocalClassifier
		decision.Reasoning = "unknown bucket: defaulting to local classifier"
	}

	return decision
}

// AllowEscalation reports whether a low-confidence local result may be
// escalated to the remote backend under the current circuit state.
func AllowEscalation(confidence float64, remoteState breaker.State, policy RoutingPolicy) bool {
	if remoteState == breaker.StateOpen {
		return false
	}

	return confidence < policy.EscalationThreshold
}
