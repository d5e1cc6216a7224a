// Package pipeline wires intent classification, prompt construction, SQL
// synthesis, validation, execution, and response shaping into the single
// guarded query path.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farmpulse/hexquery/internal/backend"
	"github.com/farmpulse/hexquery/internal/guard"
	"github.com/farmpulse/hexquery/internal/intent"
	"github.com/farmpulse/hexquery/internal/observability"
	"github.com/farmpulse/hexquery/internal/prompt"
	"github.com/farmpulse/hexquery/internal/resultcache"
	"github.com/farmpulse/hexquery/internal/schema"
	"github.com/farmpulse/hexquery/internal/session"
	"github.com/farmpulse/hexquery/internal/shape"
	"github.com/farmpulse/hexquery/internal/synth"
)

// Request is one inbound question.
type Request struct {
	Question     string
	SessionID    string
	WantsContext bool
}

// ResponseBundle is the visualization-ready answer. It is built once per
// request and never mutated; when persisted, ResultID is the cache key.
type ResponseBundle struct {
	ResultID        string                      `json:"result_id,omitempty"`
	Question        string                      `json:"question"`
	Intent          string                      `json:"intent"`
	FieldName       string                      `json:"field_name,omitempty"`
	SQL             string                      `json:"sql,omitempty"`
	SQLSummary      string                      `json:"sql_summary,omitempty"`
	Columns         []string                    `json:"columns,omitempty"`
	Results         []map[string]any            `json:"results"`
	HexIDs          []string                    `json:"hex_ids"`
	Count           int                         `json:"count"`
	Summary         string                      `json:"summary"`
	ViewType        string                      `json:"view_type,omitempty"`
	ColumnMetadata  map[string]shape.ColumnMeta `json:"column_metadata,omitempty"`
	ScatterPlotData []shape.ScatterPoint        `json:"scatter_plot_data,omitempty"`
}

// Failure kinds beyond the guard's rejection kinds.
const (
	KindRefusal         = "refusal"
	KindMalformedOutput = "malformed_output"
)

// QueryError is a terminal, non-retryable pipeline failure: a model refusal,
// a contract violation, or a guard rejection. Transport failures are
// returned as plain wrapped errors instead.
type QueryError struct {
	Kind           string
	Detail         string
	EstimatedBytes int64
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// SchemaSource is the read side of the cached schema provider.
type SchemaSource interface {
	Snapshot(ctx context.Context) (*schema.Snapshot, error)
}

type Options struct {
	Logger       *slog.Logger
	Schema       SchemaSource
	Prompts      *prompt.Builder
	Synthesizer  *synth.Synthesizer
	Classifier   *intent.Classifier
	Validator    guard.Validator
	Executor     backend.Executor
	Shaper       *shape.Shaper
	Sessions     *session.Store
	Results      resultcache.Store
	TableName    string
	FieldColumn  string
	ResultTTL    time.Duration
	QueryTimeout time.Duration
}

type Service struct {
	logger       *slog.Logger
	schema       SchemaSource
	prompts      *prompt.Builder
	synthesizer  *synth.Synthesizer
	classifier   *intent.Classifier
	validator    guard.Validator
	executor     backend.Executor
	shaper       *shape.Shaper
	sessions     *session.Store
	results      resultcache.Store
	tableName    string
	fieldColumn  string
	resultTTL    time.Duration
	queryTimeout time.Duration
	newID        func() string
}

func New(opts Options) (*Service, error) {
	switch {
	case opts.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case opts.Schema == nil:
		return nil, fmt.Errorf("schema source is required")
	case opts.Prompts == nil:
		return nil, fmt.Errorf("prompt builder is required")
	case opts.Synthesizer == nil:
		return nil, fmt.Errorf("synthesizer is required")
	case opts.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case opts.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case opts.Executor == nil:
		return nil, fmt.Errorf("executor is required")
	case opts.Shaper == nil:
		return nil, fmt.Errorf("shaper is required")
	case opts.Sessions == nil:
		return nil, fmt.Errorf("session store is required")
	case opts.Results == nil:
		return nil, fmt.Errorf("result store is required")
	case opts.TableName == "":
		return nil, fmt.Errorf("table name is required")
	case opts.FieldColumn == "":
		return nil, fmt.Errorf("field column is required")
	}

	resultTTL := opts.ResultTTL
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	queryTimeout := opts.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 60 * time.Second
	}

	return &Service{
		logger:       opts.Logger,
		schema:       opts.Schema,
		prompts:      opts.Prompts,
		synthesizer:  opts.Synthesizer,
		classifier:   opts.Classifier,
		validator:    opts.Validator,
		executor:     opts.Executor,
		shaper:       opts.Shaper,
		sessions:     opts.Sessions,
		results:      opts.Results,
		tableName:    opts.TableName,
		fieldColumn:  opts.FieldColumn,
		resultTTL:    resultTTL,
		queryTimeout: queryTimeout,
		newID:        uuid.NewString,
	}, nil
}

// Query runs the full guarded pipeline for one natural-language question.
func (s *Service) Query(ctx context.Context, req Request) (ResponseBundle, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return ResponseBundle{}, &QueryError{Kind: KindMalformedOutput, Detail: "question is required"}
	}

	snap, err := s.schema.Snapshot(ctx)
	if err != nil {
		return ResponseBundle{}, fmt.Errorf("load schema snapshot: %w", err)
	}
	table, _ := snap.Table(s.tableName)

	classification := s.classifier.Classify(ctx, question, table.FieldValues)
	if classification.Intent == intent.IntentPrescription {
		observability.ObserveQuery(string(classification.Intent), "short_circuit")
		return s.prescriptionBundle(question, classification), nil
	}

	var history []prompt.HistoryPair
	if req.WantsContext && req.SessionID != "" {
		for _, pair := range s.sessions.History(req.SessionID) {
			history = append(history, prompt.HistoryPair{Question: pair.Question, SQL: pair.SQL})
		}
	}

	rendered := s.prompts.Build(snap, question, history)

	synthStart := time.Now()
	outcome, err := s.synthesizer.Synthesize(ctx, rendered)
	observability.ObserveSynthesisLatency(time.Since(synthStart))
	if err != nil {
		observability.ObserveQuery(string(classification.Intent), "synthesis_error")
		return ResponseBundle{}, fmt.Errorf("synthesize sql: %w", err)
	}

	var success synth.Success
	switch typed := outcome.(type) {
	case synth.Refusal:
		observability.ObserveQuery(string(classification.Intent), KindRefusal)
		return ResponseBundle{}, &QueryError{Kind: KindRefusal, Detail: typed.Reason}
	case synth.MalformedOutput:
		s.logger.Warn("model output violated the contract", "raw_length", len(typed.Raw))
		observability.ObserveQuery(string(classification.Intent), KindMalformedOutput)
		return ResponseBundle{}, &QueryError{Kind: KindMalformedOutput, Detail: "could not understand the request"}
	case synth.Success:
		success = typed
	default:
		return ResponseBundle{}, fmt.Errorf("unexpected synthesis outcome %T", outcome)
	}

	verdict := s.validator.Validate(ctx, success.SQL, guard.Requirements{
		RequireFieldFilter: success.AnswerKind == synth.AnswerSpatial,
		FieldColumn:        s.fieldColumn,
	})
	switch typed := verdict.(type) {
	case guard.Rejected:
		observability.ObserveGuardRejection(string(typed.Kind))
		observability.ObserveQuery(string(classification.Intent), string(typed.Kind))
		return ResponseBundle{}, &QueryError{
			Kind:           string(typed.Kind),
			Detail:         typed.Detail,
			EstimatedBytes: typed.EstimatedBytes,
		}
	case guard.Accepted:
		if typed.EstimatedBytes >= 0 {
			observability.ObserveCostEstimate(typed.EstimatedBytes)
		}
	}

	result, err := s.execute(ctx, success.SQL)
	if err != nil {
		observability.ObserveQuery(string(classification.Intent), string(guard.RejectBackendRejected))
		return ResponseBundle{}, &QueryError{Kind: string(guard.RejectBackendRejected), Detail: err.Error()}
	}

	shaped := s.shaper.Shape(result, snap, success.AnswerKind)
	bundle := ResponseBundle{
		Question:        question,
		Intent:          string(classification.Intent),
		FieldName:       classification.FieldName,
		SQL:             success.SQL,
		SQLSummary:      success.Explanation,
		Columns:         result.Columns,
		Results:         rowMajor(result),
		HexIDs:          shaped.SpatialKeys,
		Count:           result.RowCount,
		Summary:         shaped.Summary,
		ViewType:        shaped.ViewType,
		ColumnMetadata:  shaped.ColumnMetadata,
		ScatterPlotData: shaped.ScatterData,
	}

	bundle.ResultID = s.persist(ctx, bundle)

	if req.SessionID != "" {
		s.sessions.Append(req.SessionID, question, success.SQL)
	}
	observability.ObserveQuery(string(classification.Intent), "success")
	return bundle, nil
}

// ExecuteSQL runs an operator-provided statement through the same guard and
// shaping stages, skipping synthesis. The field-filter requirement does not
// apply since no answer kind was declared.
func (s *Service) ExecuteSQL(ctx context.Context, sqlText string) (ResponseBundle, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return ResponseBundle{}, &QueryError{Kind: KindMalformedOutput, Detail: "sql is required"}
	}

	snap, err := s.schema.Snapshot(ctx)
	if err != nil {
		return ResponseBundle{}, fmt.Errorf("load schema snapshot: %w", err)
	}

	verdict := s.validator.Validate(ctx, sqlText, guard.Requirements{FieldColumn: s.fieldColumn})
	if rejected, ok := verdict.(guard.Rejected); ok {
		observability.ObserveGuardRejection(string(rejected.Kind))
		return ResponseBundle{}, &QueryError{
			Kind:           string(rejected.Kind),
			Detail:         rejected.Detail,
			EstimatedBytes: rejected.EstimatedBytes,
		}
	}

	result, err := s.execute(ctx, sqlText)
	if err != nil {
		return ResponseBundle{}, &QueryError{Kind: string(guard.RejectBackendRejected), Detail: err.Error()}
	}

	shaped := s.shaper.Shape(result, snap, synth.AnswerTabular)
	bundle := ResponseBundle{
		Question:       sqlText,
		Intent:         "sql",
		SQL:            sqlText,
		Columns:        result.Columns,
		Results:        rowMajor(result),
		HexIDs:         shaped.SpatialKeys,
		Count:          result.RowCount,
		Summary:        shaped.Summary,
		ViewType:       shaped.ViewType,
		ColumnMetadata: shaped.ColumnMetadata,
	}
	bundle.ResultID = s.persist(ctx, bundle)
	return bundle, nil
}

// ClearHistory empties a session's conversation state.
func (s *Service) ClearHistory(sessionID string) {
	s.sessions.Clear(sessionID)
}

func (s *Service) execute(ctx context.Context, sqlText string) (backend.ResultSet, error) {
	execCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.executor.Execute(execCtx, sqlText)
	observability.ObserveExecutionLatency(time.Since(start))
	return result, err
}

// persist stores the bundle under a fresh ID. Storage failure degrades to an
// uncached response rather than failing the request.
func (s *Service) persist(ctx context.Context, bundle ResponseBundle) string {
	id := s.newID()
	bundle.ResultID = id

	payload, err := json.Marshal(bundle)
	if err != nil {
		s.logger.Warn("marshal result bundle failed", "error", err)
		return ""
	}
	if err := s.results.Put(ctx, id, payload, s.resultTTL); err != nil {
		s.logger.Warn("persist result bundle failed", "result_id", id, "error", err)
		return ""
	}
	return id
}

func (s *Service) prescriptionBundle(question string, classification intent.Classification) ResponseBundle {
	summary := "This looks like a prescription request. Prescription generation runs outside the query pipeline."
	if classification.FieldName != "" {
		summary = fmt.Sprintf("This looks like a prescription request for %s. Prescription generation runs outside the query pipeline.", classification.FieldName)
	}
	return ResponseBundle{
		Question:  question,
		Intent:    string(intent.IntentPrescription),
		FieldName: classification.FieldName,
		Results:   []map[string]any{},
		Summary:   summary,
	}
}

func rowMajor(result backend.ResultSet) []map[string]any {
	rows := make([]map[string]any, result.RowCount)
	for i := 0; i < result.RowCount; i++ {
		rows[i] = result.Row(i)
	}
	return rows
}
