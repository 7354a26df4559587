package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/repotorpedo/torpedo/domain"
)

const maxErrorBody = 4 << 10

// StatusError records the HTTP status behind a classified error.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// CheckResponse maps a non-2xx response to a classified error. The body is
// consumed only on failure.
func CheckResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := errorDetail(body)
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}

	var derr *domain.Error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		derr = domain.AuthError(op, "access was rejected (%d): %s", resp.StatusCode, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		derr = domain.ProviderError(op, "rate limited, try again later: %s", detail)
	case resp.StatusCode >= 500:
		derr = domain.ProviderError(op, "service unavailable (%d): %s", resp.StatusCode, detail)
	default:
		derr = domain.ProviderError(op, "request failed (%d): %s", resp.StatusCode, detail)
	}
	derr.Err = &StatusError{Code: resp.StatusCode}
	return derr
}

// errorDetail extracts a message from common JSON error bodies.
func errorDetail(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		Error            any    `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Message != "":
			return payload.Message
		}
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
		if m, ok := payload.Error.(map[string]any); ok {
			if s, ok := m["message"].(string); ok {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// TransportError classifies a failed round trip.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.Wrap(domain.KindNetwork, op, err, "could not reach the service")
}

// DoJSON performs req and decodes a successful JSON body into out (which may be nil).
func DoJSON(hc *http.Client, op string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return TransportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Wrap(domain.KindProvider, op, err, "unexpected response")
	}
	return nil
}

// LabelAt walks a dotted path such as "0.owner.email" through decoded JSON.
func LabelAt(v any, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", fmt.Errorf("field %q not found", seg)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return "", fmt.Errorf("index %q out of range", seg)
			}
			cur = node[i]
		default:
			return "", fmt.Errorf("cannot descend into %q", seg)
		}
	}
	switch leaf := cur.(type) {
	case string:
		return leaf, nil
	case float64:
		return strconv.FormatFloat(leaf, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("field %q is not a scalar", path)
	}
}

// AccountRequest describes an authenticated "who am I" call.
type AccountRequest struct {
	URL        string
	Header     string
	Scheme     string
	Token      string
	LabelField string
}

// FetchAccount calls the account endpoint and extracts the account label.
func FetchAccount(ctx context.Context, hc *http.Client, op string, ar AccountRequest) (Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ar.URL, nil)
	if err != nil {
		return Account{}, domain.Wrap(domain.KindValidation, op, err, "invalid account endpoint")
	}
	value := ar.Token
	if ar.Scheme != "" {
		value = ar.Scheme + " " + ar.Token
	}
	header := ar.Header
	if header == "" {
		header = "Authorization"
	}
	req.Header.Set(header, value)

	var payload any
	if err := DoJSON(hc, op, req, &payload); err != nil {
		return Account{}, err
	}
	label, err := LabelAt(payload, ar.LabelField)
	if err != nil {
		return Account{}, domain.Wrap(domain.KindProvider, op, err, "could not read account name")
	}
	return Account{Label: label}, nil
}
