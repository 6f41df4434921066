// Package http provides the JSON API of the finance module.
//
// This file implements parsing of request bodies, query strings and the
// actor headers set by the session layer in front of the API.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"custfin/internal/core"
	"custfin/internal/finance"
	"custfin/internal/services"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"

	maxBodyBytes = 64 << 10
)

var errMissingActor = errors.New("missing " + headerActorID + " header")

// RequestBodyParser reads a body once and serves fields from it, whether it
// was sent as JSON or form-encoded.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if p.err == nil && len(p.body) > maxBodyBytes {
			p.err = errors.New("request body too large")
		}
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a trimmed, sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// ParseActor reads the acting user from the session headers. Unknown roles
// are treated as employees.
func ParseActor(r *http.Request) (core.Actor, error) {
	id := sanitizeInput(r.Header.Get(headerActorID))
	if id == "" {
		return core.Actor{}, errMissingActor
	}
	role := core.Role(strings.ToLower(sanitizeInput(r.Header.Get(headerActorRole))))
	switch role {
	case core.RoleAdmin, core.RoleMod, core.RoleEmployee:
	default:
		role = core.RoleEmployee
	}
	return core.Actor{ID: id, Role: role}, nil
}

// Confirmed reports whether a destructive request carries confirm=true.
func Confirmed(r *http.Request) bool {
	ok, err := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return err == nil && ok
}

// ParseViewParams reads the overview filters from the query string.
func ParseViewParams(query url.Values) (services.ViewParams, error) {
	var p services.ViewParams
	if raw := sanitizeInput(query.Get("tab")); raw != "" {
		tab, err := finance.ParseTab(raw)
		if err != nil {
			return services.ViewParams{}, err
		}
		p.Tab = tab
	}
	p.Search = sanitizeInput(query.Get("q"))
	p.Team = sanitizeInput(query.Get("team"))
	p.Member = sanitizeInput(query.Get("member"))
	p.Focus = sanitizeInput(query.Get("focus"))
	if raw := sanitizeInput(query.Get("refresh")); raw != "" {
		refresh, err := strconv.ParseBool(raw)
		if err != nil {
			return services.ViewParams{}, fmt.Errorf("%w: invalid refresh %q", core.ErrValidation, raw)
		}
		p.Refresh = refresh
	}
	return p, nil
}
