// Package hexqueryctl implements the command line client for the
// hexquery API.
package hexqueryctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("hexqueryctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "hexquery API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	sessionID := fs.String("session", "", "Session ID for conversation history")
	includeContext := fs.Bool("context", false, "Include prior conversation turns when asking")
	format := fs.String("format", "parquet", "Export format: parquet or csv")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body any
	raw := false
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/schema"
	case "schema-rebuild":
		method, path = http.MethodPost, "/v1/schema/rebuild"
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		method, path = http.MethodPost, "/v1/query"
		body = map[string]any{
			"question":        question,
			"session_id":      *sessionID,
			"include_context": *includeContext,
		}
	case "sql":
		sqlText := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if sqlText == "" {
			_, _ = fmt.Fprintln(stderr, "sql requires a statement")
			return 2
		}
		method, path = http.MethodPost, "/v1/query/sql"
		body = map[string]any{"sql": sqlText}
	case "results":
		method, path = http.MethodGet, "/v1/results"
	case "result":
		id := strings.TrimSpace(fs.Arg(1))
		if id == "" {
			_, _ = fmt.Fprintln(stderr, "result requires an id")
			return 2
		}
		method, path = http.MethodGet, "/v1/results/"+url.PathEscape(id)
	case "delete-result":
		id := strings.TrimSpace(fs.Arg(1))
		if id == "" {
			_, _ = fmt.Fprintln(stderr, "delete-result requires an id")
			return 2
		}
		method, path = http.MethodDelete, "/v1/results/"+url.PathEscape(id)
	case "export":
		id := strings.TrimSpace(fs.Arg(1))
		if id == "" {
			_, _ = fmt.Fprintln(stderr, "export requires an id")
			return 2
		}
		method = http.MethodGet
		path = "/v1/results/" + url.PathEscape(id) + "/export?format=" + url.QueryEscape(*format)
		raw = true
	case "clear-history":
		if strings.TrimSpace(*sessionID) == "" {
			_, _ = fmt.Fprintln(stderr, "clear-history requires -session")
			return 2
		}
		method, path = http.MethodPost, "/v1/query/clear-history"
		body = map[string]any{"session_id": *sessionID}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if raw {
		_, _ = stdout.Write(responseBody)
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: hexqueryctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                 GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema                GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  schema-rebuild        POST /v1/schema/rebuild")
	_, _ = fmt.Fprintln(w, "  ask <question>        POST /v1/query")
	_, _ = fmt.Fprintln(w, "  sql <statement>       POST /v1/query/sql")
	_, _ = fmt.Fprintln(w, "  results               GET /v1/results")
	_, _ = fmt.Fprintln(w, "  result <id>           GET /v1/results/{id}")
	_, _ = fmt.Fprintln(w, "  delete-result <id>    DELETE /v1/results/{id}")
	_, _ = fmt.Fprintln(w, "  export <id>           GET /v1/results/{id}/export")
	_, _ = fmt.Fprintln(w, "  clear-history         POST /v1/query/clear-history")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
