package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/repotorpedo/torpedo/domain"
)

// entry is one element of the export array.
type entry struct {
	URL    string `json:"url"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

var entryFields = []string{"url", "date", "status"}

// Encode writes recs as a JSON array of {url, date, status} objects.
func Encode(recs []domain.HistoryRecord) ([]byte, error) {
	entries := make([]entry, len(recs))
	for i, r := range recs {
		entries[i] = entry{URL: r.URL, Date: r.Date, Status: r.Status.String()}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses an export strictly: the top level must be an array and
// every element an object with exactly the url, date and status string fields.
func Decode(data []byte) ([]domain.HistoryRecord, error) {
	const op = "import history"

	if !utf8.Valid(data) {
		return nil, domain.ValidationError(op, "file is not valid UTF-8")
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, domain.ValidationError(op, "expected a JSON array of deployments")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, domain.ValidationError(op, "invalid JSON: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, domain.ValidationError(op, "unexpected data after the JSON array")
	}

	recs := make([]domain.HistoryRecord, 0, len(raw))
	for i, item := range raw {
		rec, err := decodeEntry(item)
		if err != nil {
			return nil, domain.ValidationError(op, "entry %d: %s", i+1, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func decodeEntry(item json.RawMessage) (domain.HistoryRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return domain.HistoryRecord{}, errors.New("expected an object")
	}

	values := make(map[string]string, len(entryFields))
	for _, name := range entryFields {
		rawValue, ok := fields[name]
		if !ok {
			return domain.HistoryRecord{}, fmt.Errorf("missing %q", name)
		}
		var s string
		if err := json.Unmarshal(rawValue, &s); err != nil || bytes.Equal(bytes.TrimSpace(rawValue), []byte("null")) {
			return domain.HistoryRecord{}, fmt.Errorf("%q must be a string", name)
		}
		values[name] = s
	}
	if len(fields) != len(entryFields) {
		for name := range fields {
			if _, known := values[name]; !known {
				return domain.HistoryRecord{}, fmt.Errorf("unknown field %q", name)
			}
		}
	}

	rec := domain.HistoryRecord{
		URL:    values["url"],
		Date:   values["date"],
		Status: domain.HistoryStatus(values["status"]),
	}
	if err := rec.Validate(); err != nil {
		return domain.HistoryRecord{}, errors.New(domain.UserMessage(err))
	}
	return rec, nil
}
