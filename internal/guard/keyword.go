package guard

import (
	"context"
	"fmt"
	"strings"
)

// forbiddenKeywords is the blacklist used by the fallback validator.
var forbiddenKeywords = map[string]string{
	"insert":   "insert",
	"update":   "update",
	"delete":   "delete",
	"drop":     "drop",
	"create":   "create",
	"alter":    "alter",
	"merge":    "merge",
	"truncate": "truncate",
	"grant":    "grant",
	"revoke":   "revoke",
	"attach":   "attach",
	"copy":     "copy",
	"pragma":   "pragma",
}

// KeywordValidator is the fallback for backends without a usable parser. It
// tokenizes the raw text and checks a keyword blacklist. This is strictly
// weaker than the AST walk: it cannot see through every obfuscation and it
// rejects some legitimate statements that merely mention a blacklisted word
// as an identifier. Prefer ASTValidator wherever a parser is available.
type KeywordValidator struct{}

func NewKeywordValidator() *KeywordValidator {
	return &KeywordValidator{}
}

func (KeywordValidator) SupportsDryRun() bool {
	return false
}

func (KeywordValidator) Validate(_ context.Context, sqlText string, reqs Requirements) Verdict {
	tokens := tokenize(sqlText)
	if len(tokens) == 0 {
		return Rejected{Kind: RejectParseFailure, Detail: "empty statement"}
	}

	if tokens[0] != "select" && tokens[0] != "with" {
		if kind, ok := forbiddenKeywords[tokens[0]]; ok {
			return Rejected{Kind: RejectForbiddenOperation, Detail: kind}
		}
		return Rejected{Kind: RejectNotSelect, Detail: fmt.Sprintf("statement starts with %q", tokens[0])}
	}

	for _, token := range tokens[1:] {
		if kind, ok := forbiddenKeywords[token]; ok {
			return Rejected{Kind: RejectForbiddenOperation, Detail: kind}
		}
	}

	if reqs.RequireFieldFilter {
		if !keywordFieldFilter(tokens, strings.ToLower(reqs.FieldColumn)) {
			return Rejected{
				Kind:   RejectMissingRequiredFilter,
				Detail: fmt.Sprintf("map queries must filter on the %s column", reqs.FieldColumn),
			}
		}
	}

	return Accepted{EstimatedBytes: -1}
}

func keywordFieldFilter(tokens []string, fieldColumn string) bool {
	for i, token := range tokens {
		if token != fieldColumn || i+1 >= len(tokens) {
			continue
		}
		if next := tokens[i+1]; next == "=" || next == "in" {
			return true
		}
	}
	return false
}

func tokenize(sqlText string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range strings.ToLower(sqlText) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			current.WriteRune(r)
		case r == '=':
			flush()
			tokens = append(tokens, "=")
		default:
			flush()
		}
	}
	flush()
	return tokens
}
