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

	"mealtracker/internal/core"
)

const maxBodyBytes = 1 << 20

// RequestBodyParser reads a JSON or form encoded body once and exposes its
// fields as trimmed strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body. Failures wrap core.ErrInvalidInput.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(p.err, &tooLarge) {
			p.err = fmt.Errorf("%w: request body too large", core.ErrInvalidInput)
		}
		return p.err
	}

	if len(strings.TrimSpace(string(p.body))) == 0 {
		p.err = fmt.Errorf("%w: request body is required", core.ErrInvalidInput)
		return p.err
	}

	if p.IsJSON() {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: malformed JSON body", core.ErrInvalidInput)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(p.body))
	if err != nil {
		p.err = fmt.Errorf("%w: malformed form body", core.ErrInvalidInput)
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns the field as a string. JSON null and absent fields yield "".
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

// IsJSON reports whether the body is JSON, by content type or by shape.
func (p *RequestBodyParser) IsJSON() bool {
	if strings.HasPrefix(p.contentType, "application/json") {
		return true
	}
	trimmed := strings.TrimSpace(string(p.body))
	return strings.HasPrefix(trimmed, "{")
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

// requireDate reads the mandatory date query parameter.
func requireDate(query url.Values) (string, error) {
	date := strings.TrimSpace(query.Get("date"))
	if date == "" {
		return "", fmt.Errorf("%w: date query parameter is required", core.ErrInvalidInput)
	}
	if _, err := core.ParseDate(date); err != nil {
		return "", err
	}
	return date, nil
}
