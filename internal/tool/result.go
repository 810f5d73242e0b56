package tool

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ResultKind tags the variants of a tool outcome.
type ResultKind string

const (
	KindText       ResultKind = "text"
	KindStructured ResultKind = "structured"
	KindFailure    ResultKind = "failure"
)

// Result is the tagged outcome of a tool call: plain text, a structured
// value, or a failure. Exactly one variant is populated per kind.
type Result struct {
	Kind  ResultKind
	Text  string
	Value interface{}
	Err   string
}

func TextResult(text string) Result {
	return Result{Kind: KindText, Text: text}
}

func StructuredResult(value interface{}) Result {
	return Result{Kind: KindStructured, Value: value}
}

func FailureResult(format string, args ...interface{}) Result {
	return Result{Kind: KindFailure, Err: fmt.Sprintf(format, args...)}
}

// Canonical renders the result as the readable string that becomes the
// tool message content, capped at maxChars (0 means no cap).
func (r Result) Canonical(maxChars int) string {
	var out string
	switch r.Kind {
	case KindText:
		out = r.Text
	case KindStructured:
		encoded, err := json.Marshal(r.Value)
		if err != nil {
			out = fmt.Sprintf("%v", r.Value)
		} else {
			out = string(encoded)
		}
	case KindFailure:
		out = "Error: " + r.Err
	default:
		out = ""
	}

	out = strings.TrimSpace(out)
	if maxChars > 0 && len(out) > maxChars {
		// Cap on a rune boundary so multi-byte text is never left with a
		// torn trailing character.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "... (truncated)"
	}
	return out
}

// IsFailure reports whether the result carries the failure variant.
func (r Result) IsFailure() bool {
	return r.Kind == KindFailure
}
