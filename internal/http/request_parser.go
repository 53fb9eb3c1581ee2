package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

const dateLayout = "2006-01-02"

// timestampLayouts are tried in order; the zone-less ones are read in the
// server's location.
var timestampLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	dateLayout,
}

// RequestBodyParser reads a request body once and exposes its fields
// whether it was sent as JSON or as a form.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the whole body of r.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(r.Body)
	return p
}

// Parse decodes the body. Malformed input wraps core.ErrInvalidInput.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = fmt.Errorf("%w: read body: %v", core.ErrInvalidInput, p.err)
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
			p.err = fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidInput, err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("%w: malformed form body: %v", core.ErrInvalidInput, p.err)
	}
	return p.err
}

// Has reports whether the body carried key at all, even with an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns the sanitized string form of key.
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

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// parseTimestamp accepts RFC 3339 or a local date or date-time in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", core.ErrInvalidInput, s)
}

// ParseDraft reads a new transaction. Amount and category are required; the
// service fills in the rest.
func ParseDraft(p *RequestBodyParser, loc *time.Location) (services.Draft, error) {
	if err := p.Parse(); err != nil {
		return services.Draft{}, err
	}

	var d services.Draft
	if !p.Has("amount") {
		return d, fmt.Errorf("%w: amount is required", core.ErrInvalidInput)
	}
	if !p.Has("category") {
		return d, fmt.Errorf("%w: category is required", core.ErrInvalidInput)
	}

	amount, err := core.ParseMoney(p.Get("amount"))
	if err != nil {
		return d, err
	}
	category, err := core.ParseCategory(p.Get("category"))
	if err != nil {
		return d, err
	}
	d.Amount = amount
	d.Category = category
	d.Description = p.Get("description")
	d.Currency = p.Get("currency")

	if ts := p.Get("timestamp"); ts != "" {
		if d.Timestamp, err = parseTimestamp(ts, loc); err != nil {
			return d, err
		}
	}
	return d, nil
}

// ApplyUpdate overwrites the fields of tx present in the body.
func ApplyUpdate(p *RequestBodyParser, tx core.Transaction, loc *time.Location) (core.Transaction, error) {
	if err := p.Parse(); err != nil {
		return tx, err
	}

	if p.Has("amount") {
		amount, err := core.ParseMoney(p.Get("amount"))
		if err != nil {
			return tx, err
		}
		tx.Amount = amount
	}
	if p.Has("category") {
		category, err := core.ParseCategory(p.Get("category"))
		if err != nil {
			return tx, err
		}
		tx.Category = category
	}
	if p.Has("description") {
		tx.Description = p.Get("description")
		if tx.Description == "" {
			tx.Description = tx.Category.Display().Name
		}
	}
	if p.Has("timestamp") {
		ts, err := parseTimestamp(p.Get("timestamp"), loc)
		if err != nil {
			return tx, err
		}
		tx.Timestamp = ts
	}
	if p.Has("currency") {
		tx.Currency = p.Get("currency")
	}
	return tx, nil
}

// ParseListFilter reads from, to, category and exclude from the query.
// A date-only "to" includes that whole day.
func ParseListFilter(q url.Values, loc *time.Location) (storage.Filter, error) {
	var f storage.Filter

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		from, err := parseTimestamp(v, loc)
		if err != nil {
			return f, err
		}
		f.From = from
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := parseTimestamp(v, loc)
		if err != nil {
			return f, err
		}
		if _, dateOnly := time.ParseInLocation(dateLayout, v, loc); dateOnly == nil {
			to = to.AddDate(0, 0, 1)
		}
		f.To = to
	}
	if !f.From.IsZero() && !f.To.IsZero() {
		if _, err := core.NewTimeRange(f.From, f.To); err != nil {
			return f, err
		}
	}

	if v := strings.TrimSpace(q.Get("category")); v != "" {
		c, err := core.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = c
	}
	if v := strings.TrimSpace(q.Get("exclude")); v != "" {
		c, err := core.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Exclude = c
	}
	return f, nil
}
