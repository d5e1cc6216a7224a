package guard

import (
	"context"
	"fmt"
	"testing"

	"github.com/xwb1989/sqlparser"
)

type fixedEstimator struct {
	bytes int64
	err   error
	calls int
}

func (f *fixedEstimator) EstimateScanBytes(context.Context, string) (int64, error) {
	f.calls++
	return f.bytes, f.err
}

func bothValidators(t *testing.T, run func(t *testing.T, v Validator)) {
	t.Helper()
	for name, v := range map[string]Validator{
		"ast":     NewASTValidator(nil, 1_000_000_000),
		"keyword": NewKeywordValidator(),
	} {
		t.Run(name, func(t *testing.T) { run(t, v) })
	}
}

func TestValidateAcceptsPlainSelect(t *testing.T) {
	bothValidators(t, func(t *testing.T, v Validator) {
		verdict := v.Validate(context.Background(), "SELECT h3_index, ph FROM agricultural_hexes WHERE ph < 5.5", Requirements{})
		if _, ok := verdict.(Accepted); !ok {
			t.Fatalf("verdict = %#v, want Accepted", verdict)
		}
	})
}

func TestValidateRejectsNonProjectionRoot(t *testing.T) {
	bothValidators(t, func(t *testing.T, v Validator) {
		verdict := v.Validate(context.Background(), "SET autocommit = 1", Requirements{})
		rejected, ok := verdict.(Rejected)
		if !ok {
			t.Fatalf("verdict = %#v, want Rejected", verdict)
		}
		if rejected.Kind != RejectNotSelect {
			t.Fatalf("kind = %q, want %q", rejected.Kind, RejectNotSelect)
		}
	})
}

func TestValidateRejectsDropWithOperationKind(t *testing.T) {
	bothValidators(t, func(t *testing.T, v Validator) {
		verdict := v.Validate(context.Background(), "DROP TABLE agricultural_hexes", Requirements{})
		rejected, ok := verdict.(Rejected)
		if !ok {
			t.Fatalf("verdict = %#v, want Rejected", verdict)
		}
		if rejected.Kind != RejectForbiddenOperation {
			t.Fatalf("kind = %q, want %q", rejected.Kind, RejectForbiddenOperation)
		}
		if rejected.Detail != "drop" {
			t.Fatalf("detail = %q, want drop", rejected.Detail)
		}
	})
}

func TestValidateRejectsMutatingStatements(t *testing.T) {
	cases := map[string]string{
		"INSERT INTO agricultural_hexes (h3_index) VALUES ('x')":     "insert",
		"UPDATE agricultural_hexes SET ph = 7":                       "update",
		"DELETE FROM agricultural_hexes":                             "delete",
		"ALTER TABLE agricultural_hexes ADD COLUMN extra int":        "alter",
		"CREATE TABLE copies AS SELECT * FROM agricultural_hexes":    "create",
	}
	bothValidators(t, func(t *testing.T, v Validator) {
		for sqlText, wantKind := range cases {
			verdict := v.Validate(context.Background(), sqlText, Requirements{})
			rejected, ok := verdict.(Rejected)
			if !ok {
				t.Fatalf("%s: verdict = %#v, want Rejected", sqlText, verdict)
			}
			if rejected.Kind != RejectForbiddenOperation {
				t.Fatalf("%s: kind = %q", sqlText, rejected.Kind)
			}
			if rejected.Detail != wantKind {
				t.Fatalf("%s: detail = %q, want %q", sqlText, rejected.Detail, wantKind)
			}
		}
	})
}

func TestScanForbiddenNodesCatchesNestedMutations(t *testing.T) {
	verdict := scanForbiddenNodes(&sqlparser.DDL{Action: sqlparser.DropStr})
	rejected, ok := verdict.(Rejected)
	if !ok {
		t.Fatalf("verdict = %#v, want Rejected", verdict)
	}
	if rejected.Detail != "drop" {
		t.Fatalf("detail = %q", rejected.Detail)
	}

	stmt, err := sqlparser.Parse("SELECT h3_index FROM agricultural_hexes WHERE field_name IN (SELECT name FROM fields)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if verdict := scanForbiddenNodes(stmt); verdict != nil {
		t.Fatalf("verdict = %#v, want nil for read-only subquery", verdict)
	}
}

func TestValidateUnparsableSQL(t *testing.T) {
	v := NewASTValidator(nil, 1_000_000_000)
	verdict := v.Validate(context.Background(), "SELECT FROM WHERE ???", Requirements{})
	rejected, ok := verdict.(Rejected)
	if !ok {
		t.Fatalf("verdict = %#v, want Rejected", verdict)
	}
	if rejected.Kind != RejectParseFailure {
		t.Fatalf("kind = %q", rejected.Kind)
	}
}

func TestValidateCostCeiling(t *testing.T) {
	estimator := &fixedEstimator{bytes: 2_000_000_000}
	v := NewASTValidator(estimator, 1_000_000_000)
	if !v.SupportsDryRun() {
		t.Fatal("expected dry-run support with an estimator")
	}

	verdict := v.Validate(context.Background(), "SELECT * FROM agricultural_hexes", Requirements{})
	rejected, ok := verdict.(Rejected)
	if !ok {
		t.Fatalf("verdict = %#v, want Rejected", verdict)
	}
	if rejected.Kind != RejectCostExceeded {
		t.Fatalf("kind = %q", rejected.Kind)
	}
	if rejected.EstimatedBytes != 2_000_000_000 {
		t.Fatalf("estimated = %d, want backend figure", rejected.EstimatedBytes)
	}
}

func TestValidateAcceptsUnderCostCeiling(t *testing.T) {
	estimator := &fixedEstimator{bytes: 512}
	v := NewASTValidator(estimator, 1_000_000_000)

	verdict := v.Validate(context.Background(), "SELECT count(*) FROM agricultural_hexes", Requirements{})
	accepted, ok := verdict.(Accepted)
	if !ok {
		t.Fatalf("verdict = %#v, want Accepted", verdict)
	}
	if accepted.EstimatedBytes != 512 {
		t.Fatalf("estimated = %d", accepted.EstimatedBytes)
	}
}

func TestValidateDryRunFailureIsBackendRejected(t *testing.T) {
	estimator := &fixedEstimator{err: fmt.Errorf("relation does not exist")}
	v := NewASTValidator(estimator, 1_000_000_000)

	verdict := v.Validate(context.Background(), "SELECT * FROM nonexistent", Requirements{})
	rejected, ok := verdict.(Rejected)
	if !ok {
		t.Fatalf("verdict = %#v, want Rejected", verdict)
	}
	if rejected.Kind != RejectBackendRejected {
		t.Fatalf("kind = %q", rejected.Kind)
	}
}

func TestValidateWithoutEstimatorSkipsCostStage(t *testing.T) {
	v := NewASTValidator(nil, 1)
	if v.SupportsDryRun() {
		t.Fatal("expected no dry-run support without an estimator")
	}
	verdict := v.Validate(context.Background(), "SELECT * FROM agricultural_hexes", Requirements{})
	accepted, ok := verdict.(Accepted)
	if !ok {
		t.Fatalf("verdict = %#v, want Accepted", verdict)
	}
	if accepted.EstimatedBytes != -1 {
		t.Fatalf("estimated = %d, want -1 for unknown", accepted.EstimatedBytes)
	}
}

func TestValidateRequiredFieldFilter(t *testing.T) {
	reqs := Requirements{RequireFieldFilter: true, FieldColumn: "field_name"}

	bothValidators(t, func(t *testing.T, v Validator) {
		verdict := v.Validate(context.Background(),
			"SELECT h3_index FROM agricultural_hexes WHERE field_name = 'North of Road'", reqs)
		if _, ok := verdict.(Accepted); !ok {
			t.Fatalf("equality filter: verdict = %#v, want Accepted", verdict)
		}

		verdict = v.Validate(context.Background(),
			"SELECT h3_index FROM agricultural_hexes WHERE field_name IN ('North of Road', 'South Field')", reqs)
		if _, ok := verdict.(Accepted); !ok {
			t.Fatalf("in filter: verdict = %#v, want Accepted", verdict)
		}

		verdict = v.Validate(context.Background(),
			"SELECT h3_index FROM agricultural_hexes WHERE ph < 5.5", reqs)
		rejected, ok := verdict.(Rejected)
		if !ok {
			t.Fatalf("missing filter: verdict = %#v, want Rejected", verdict)
		}
		if rejected.Kind != RejectMissingRequiredFilter {
			t.Fatalf("kind = %q", rejected.Kind)
		}
	})
}

func TestKeywordValidatorCatchesTrailingMutation(t *testing.T) {
	v := NewKeywordValidator()
	verdict := v.Validate(context.Background(), "SELECT 1; DROP TABLE agricultural_hexes", Requirements{})
	rejected, ok := verdict.(Rejected)
	if !ok {
		t.Fatalf("verdict = %#v, want Rejected", verdict)
	}
	if rejected.Kind != RejectForbiddenOperation || rejected.Detail != "drop" {
		t.Fatalf("rejection = %+v", rejected)
	}
}
