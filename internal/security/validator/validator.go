// Package validator checks request shape and scans request content for
// script and SQL injection signatures.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
)

const (
	locationBody  = "body"
	locationQuery = "query"

	checkContentType = "content_type"
	checkSize        = "size"
	checkJSON        = "json"
	checkXSS         = "xss"
	checkSQL         = "sql"
)

// Config mirrors the input section of the security configuration.
type Config struct {
	MaxBodyBytes        int64
	AllowedContentTypes []string
	ScanQuery           bool
}

// Result is the verdict for one request. Details is populated for
// rejections only.
type Result struct {
	Allowed   bool
	Reason    string
	Status    int
	EventType models.EventType
	Severity  models.Severity
	Details   models.InputDetails
}

// Validator is stateless and safe for concurrent use.
type Validator struct {
	maxBody   int64
	allowed   map[string]struct{}
	scanQuery bool
}

func New(cfg Config) (*Validator, error) {
	if cfg.MaxBodyBytes <= 0 {
		return nil, dErrors.Configuration(fmt.Sprintf("max body bytes must be positive, got %d", cfg.MaxBodyBytes))
	}
	if len(cfg.AllowedContentTypes) == 0 {
		return nil, dErrors.Configuration("at least one allowed content type is required")
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedContentTypes))
	for _, ct := range cfg.AllowedContentTypes {
		allowed[strings.ToLower(strings.TrimSpace(ct))] = struct{}{}
	}
	return &Validator{maxBody: cfg.MaxBodyBytes, allowed: allowed, scanQuery: cfg.ScanQuery}, nil
}

// Applies reports whether req has anything for Validate to inspect.
func (v *Validator) Applies(req *models.RequestDescriptor) bool {
	return req.HasBody() || (v.scanQuery && req.RawQuery != "")
}

// Validate runs the checks in order and stops at the first failure:
// content type, size, JSON syntax, then XSS and SQL signatures over the body
// and query string.
func (v *Validator) Validate(req *models.RequestDescriptor) Result {
	var bodyValues []string
	if req.HasBody() {
		mediaType := parseMediaType(req.ContentType)
		if _, ok := v.allowed[mediaType]; !ok {
			return reject(models.ReasonUnsupportedType, http.StatusUnsupportedMediaType, models.SeverityMedium,
				models.InputDetails{Check: checkContentType, ContentType: mediaType})
		}

		size := int64(len(req.Body))
		if req.ContentLength > size {
			size = req.ContentLength
		}
		if size > v.maxBody {
			return reject(models.ReasonBodyTooLarge, http.StatusRequestEntityTooLarge, models.SeverityMedium,
				models.InputDetails{Check: checkSize, Size: size, Limit: v.maxBody})
		}

		values, err := extractBody(mediaType, req.Body)
		if err != nil {
			return reject(models.ReasonMalformedJSON, http.StatusBadRequest, models.SeverityLow,
				models.InputDetails{Check: checkJSON, ContentType: mediaType})
		}
		bodyValues = values
	}

	var queryValues []string
	if v.scanQuery && req.RawQuery != "" {
		queryValues = extractQuery(req.RawQuery)
	}

	if res, hit := scan(xssSignatures, bodyValues, queryValues, checkXSS, models.ReasonXSS, models.SeverityHigh); hit {
		return res
	}
	if res, hit := scan(sqlSignatures, bodyValues, queryValues, checkSQL, models.ReasonSQLInjection, models.SeverityCritical); hit {
		return res
	}
	return Result{Allowed: true}
}

func scan(family []signature, body, query []string, check, reason string, sev models.Severity) (Result, bool) {
	if name, ok := firstMatch(family, body); ok {
		return violation(reason, sev, models.InputDetails{Check: check, Pattern: name, Location: locationBody}), true
	}
	if name, ok := firstMatch(family, query); ok {
		return violation(reason, sev, models.InputDetails{Check: check, Pattern: name, Location: locationQuery}), true
	}
	return Result{}, false
}

func reject(reason string, status int, sev models.Severity, d models.InputDetails) Result {
	return Result{Reason: reason, Status: status, EventType: models.EventInvalidInput, Severity: sev, Details: d}
}

func violation(reason string, sev models.Severity, d models.InputDetails) Result {
	return Result{Reason: reason, Status: http.StatusBadRequest, EventType: models.EventSecurityViolation, Severity: sev, Details: d}
}

// parseMediaType lowercases the media type and strips parameters. An
// unparsable header yields its raw lowercased prefix so it is still rejected
// by the allow-list.
func parseMediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		before, _, _ := strings.Cut(contentType, ";")
		return strings.ToLower(strings.TrimSpace(before))
	}
	return mt
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// extractBody returns the strings to scan. JSON bodies are parsed and every
// key and string value collected; form bodies are URL-decoded; anything else
// is scanned as raw text.
func extractBody(mediaType string, body []byte) ([]string, error) {
	switch {
	case isJSON(mediaType):
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
		if dec.More() {
			return nil, fmt.Errorf("trailing data after JSON value")
		}
		var out []string
		collectStrings(doc, &out)
		return out, nil
	case mediaType == "application/x-www-form-urlencoded":
		return extractQuery(string(body)), nil
	default:
		return []string{string(body)}, nil
	}
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []any:
		for _, item := range t {
			collectStrings(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			*out = append(*out, k)
			collectStrings(t[k], out)
		}
	}
}

// extractQuery decodes a query or form string into its keys and values,
// falling back to the unescaped raw text when it does not parse.
func extractQuery(raw string) []string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		if unescaped, uerr := url.QueryUnescape(raw); uerr == nil {
			return []string{unescaped}
		}
		return []string{raw}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(values)*2)
	for _, k := range keys {
		out = append(out, k)
		out = append(out, values[k]...)
	}
	return out
}
