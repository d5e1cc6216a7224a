// Package guard validates synthesized SQL before it can touch live data.
// Stages run strictly in order: parse, statement kind, forbidden-operation
// tree walk, dry-run cost estimate, required field filter. The first failing
// stage short-circuits the rest. Validators hold no mutable state and are
// safe for concurrent use.
package guard

import "context"

type RejectionKind string

const (
	RejectParseFailure          RejectionKind = "parse_failure"
	RejectNotSelect             RejectionKind = "not_select"
	RejectForbiddenOperation    RejectionKind = "forbidden_operation"
	RejectCostExceeded          RejectionKind = "cost_exceeded"
	RejectMissingRequiredFilter RejectionKind = "missing_required_filter"
	RejectBackendRejected       RejectionKind = "backend_rejected"
)

// Verdict is the tagged validation result.
type Verdict interface {
	verdict()
}

// Accepted clears a statement for execution. EstimatedBytes is the backend's
// dry-run figure, or -1 when the validator has no dry-run capability.
type Accepted struct {
	EstimatedBytes int64
}

// Rejected blocks a statement. Detail carries the offending operation kind
// or the backend's message; EstimatedBytes is set only for cost rejections.
type Rejected struct {
	Kind           RejectionKind
	Detail         string
	EstimatedBytes int64
}

func (Accepted) verdict() {}
func (Rejected) verdict() {}

// Requirements are the per-request validation inputs that depend on the
// synthesized answer kind.
type Requirements struct {
	// RequireFieldFilter demands an equality or IN predicate on FieldColumn;
	// set for spatial answers.
	RequireFieldFilter bool
	FieldColumn        string
}

// Validator checks one SQL candidate. SupportsDryRun reports whether the
// cost-estimation stage runs; validators without it still enforce every
// structural stage.
type Validator interface {
	Validate(ctx context.Context, sqlText string, reqs Requirements) Verdict
	SupportsDryRun() bool
}
