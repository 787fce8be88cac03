package validator

import "regexp"

// signature is a named malicious-input pattern. The name is reported in
// events; the expression never leaves the process.
type signature struct {
	name string
	re   *regexp.Regexp
}

// Signatures are a deny heuristic, not a parser: legitimate prose that
// quotes markup or SQL can match.
var xssSignatures = []signature{
	{"script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script\b`)},
	{"javascript_uri", regexp.MustCompile(`(?i)\bjavascript\s*:`)},
	{"svg_onload", regexp.MustCompile(`(?i)<\s*svg\b[^>]*\bon\w+\s*=`)},
	{"embedded_frame", regexp.MustCompile(`(?i)<\s*(?:iframe|object|embed)\b`)},
	{"event_handler", regexp.MustCompile(`(?i)\bon(?:load|error|click|dblclick|mouse\w*|key\w*|focus\w*|blur|submit|change|input|toggle|pointer\w*|animation\w*)\s*=`)},
	{"eval_call", regexp.MustCompile(`(?i)\beval\s*\(`)},
	{"function_constructor", regexp.MustCompile(`\bFunction\s*\(`)},
	{"html_data_uri", regexp.MustCompile(`(?i)\bdata\s*:\s*text/html`)},
}

var sqlSignatures = []signature{
	{"stacked_query", regexp.MustCompile(`(?i);\s*(?:drop|delete|insert|update|alter|truncate|create|exec|shutdown)\b`)},
	{"union_select", regexp.MustCompile(`(?i)\bunion\b(?:\s+all)?\s+select\b`)},
	{"quoted_tautology", regexp.MustCompile(`(?i)'\s*(?:or|and)\s+'?\w+'?\s*=\s*'?\w+`)},
	{"numeric_tautology", regexp.MustCompile(`(?i)\bor\s+1\s*=\s*1\b`)},
	{"comment_terminated", regexp.MustCompile(`(?i)\b(?:select|insert|update|delete|drop|alter|create|truncate|exec|union)\b.*(?:--|/\*|#\s*$)`)},
	{"time_delay", regexp.MustCompile(`(?i)\b(?:pg_sleep|sleep|benchmark)\s*\(|\bwaitfor\s+delay\b`)},
}

// firstMatch returns the name of the first signature, in list order, that
// matches any of values.
func firstMatch(family []signature, values []string) (string, bool) {
	for _, sig := range family {
		for _, v := range values {
			if sig.re.MatchString(v) {
				return sig.name, true
			}
		}
	}
	return "", false
}
