package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/farmpulse/hexquery/internal/backend"
)

// ASTValidator parses the candidate and walks the full expression tree,
// subqueries included, so forbidden operations cannot hide behind comments
// or identifier tricks. When built with an estimator it also enforces the
// scan-byte ceiling through a backend dry run.
type ASTValidator struct {
	estimator    backend.Estimator
	maxScanBytes int64
}

func NewASTValidator(estimator backend.Estimator, maxScanBytes int64) *ASTValidator {
	return &ASTValidator{estimator: estimator, maxScanBytes: maxScanBytes}
}

func (v *ASTValidator) SupportsDryRun() bool {
	return v.estimator != nil
}

func (v *ASTValidator) Validate(ctx context.Context, sqlText string, reqs Requirements) Verdict {
	stmt, err := sqlparser.Parse(sqlText)
	if err != nil {
		return Rejected{Kind: RejectParseFailure, Detail: err.Error()}
	}

	if verdict := checkStatementKind(stmt); verdict != nil {
		return verdict
	}
	if verdict := scanForbiddenNodes(stmt); verdict != nil {
		return verdict
	}

	estimated := int64(-1)
	if v.estimator != nil {
		estimated, err = v.estimator.EstimateScanBytes(ctx, sqlText)
		if err != nil {
			return Rejected{Kind: RejectBackendRejected, Detail: err.Error()}
		}
		if estimated > v.maxScanBytes {
			return Rejected{
				Kind:           RejectCostExceeded,
				Detail:         fmt.Sprintf("estimated %d bytes exceeds the %d byte ceiling", estimated, v.maxScanBytes),
				EstimatedBytes: estimated,
			}
		}
	}

	if reqs.RequireFieldFilter {
		if !hasFieldFilter(stmt, reqs.FieldColumn) {
			return Rejected{
				Kind:   RejectMissingRequiredFilter,
				Detail: fmt.Sprintf("map queries must filter on the %s column", reqs.FieldColumn),
			}
		}
	}

	return Accepted{EstimatedBytes: estimated}
}

// checkStatementKind rejects anything whose root is not a read-only
// projection. Mutating roots carry their operation kind; non-mutating
// non-projections (SET, SHOW, USE, ...) are plain NotSelect.
func checkStatementKind(stmt sqlparser.Statement) Verdict {
	switch typed := stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
		return nil
	case *sqlparser.Insert:
		return Rejected{Kind: RejectForbiddenOperation, Detail: "insert"}
	case *sqlparser.Update:
		return Rejected{Kind: RejectForbiddenOperation, Detail: "update"}
	case *sqlparser.Delete:
		return Rejected{Kind: RejectForbiddenOperation, Detail: "delete"}
	case *sqlparser.DDL:
		return Rejected{Kind: RejectForbiddenOperation, Detail: typed.Action}
	case *sqlparser.DBDDL:
		return Rejected{Kind: RejectForbiddenOperation, Detail: typed.Action}
	default:
		return Rejected{Kind: RejectNotSelect, Detail: fmt.Sprintf("%T is not a read-only projection", stmt)}
	}
}

// scanForbiddenNodes walks every node of the tree, including nested
// subqueries and unions, and rejects on any mutating node.
func scanForbiddenNodes(stmt sqlparser.Statement) Verdict {
	var offending string
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch typed := node.(type) {
		case *sqlparser.Insert:
			offending = "insert"
		case *sqlparser.Update:
			offending = "update"
		case *sqlparser.Delete:
			offending = "delete"
		case *sqlparser.DDL:
			offending = typed.Action
		case *sqlparser.DBDDL:
			offending = typed.Action
		}
		return offending == "", nil
	}, stmt)

	if offending != "" {
		return Rejected{Kind: RejectForbiddenOperation, Detail: offending}
	}
	return nil
}

// hasFieldFilter reports whether the tree contains an equality or IN
// predicate whose left side is the designated field column.
func hasFieldFilter(stmt sqlparser.Statement, fieldColumn string) bool {
	wanted := strings.ToLower(fieldColumn)
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		cmp, ok := node.(*sqlparser.ComparisonExpr)
		if !ok {
			return true, nil
		}
		if cmp.Operator != sqlparser.EqualStr && cmp.Operator != sqlparser.InStr {
			return true, nil
		}
		if col, ok := cmp.Left.(*sqlparser.ColName); ok && col.Name.Lowered() == wanted {
			found = true
			return false, nil
		}
		return true, nil
	}, stmt)
	return found
}
