package newsharvest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload is wrapped by every PayloadError.
var ErrInvalidPayload = errors.New("invalid work item payload")

// PayloadError reports a missing or malformed payload field.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid payload field %q: %s", e.Field, e.Reason)
}

func (e *PayloadError) Unwrap() error {
	return ErrInvalidPayload
}

// SearchRequest is one harvesting job.
type SearchRequest struct {
	SearchTerm string   `json:"search_term"`
	Topics     []string `json:"topics"`
	// HorizonMonths is how far back to collect. Values below 1 are treated
	// as 1.
	HorizonMonths int `json:"number_of_months"`
}

// Validate checks the request can be run.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.SearchTerm) == "" {
		return &PayloadError{Field: "search_term", Reason: "must not be empty"}
	}
	for i, topic := range r.Topics {
		if strings.TrimSpace(topic) == "" {
			return &PayloadError{Field: "topics", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	return nil
}

// Payload encodes the request as a work item payload.
func (r SearchRequest) Payload() ([]byte, error) {
	if r.Topics == nil {
		r.Topics = []string{}
	}
	return json.Marshal(r)
}

// ParsePayload decodes and validates a work item payload. All three fields
// must be present; topics may be an empty list.
func ParsePayload(data []byte) (SearchRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return SearchRequest{}, &PayloadError{Reason: "not a JSON object"}
	}

	var req SearchRequest
	if err := decodeField(fields, "search_term", &req.SearchTerm, "must be a string"); err != nil {
		return SearchRequest{}, err
	}
	if err := decodeField(fields, "topics", &req.Topics, "must be a list of strings"); err != nil {
		return SearchRequest{}, err
	}
	if err := decodeField(fields, "number_of_months", &req.HorizonMonths, "must be an integer"); err != nil {
		return SearchRequest{}, err
	}

	req.SearchTerm = strings.TrimSpace(req.SearchTerm)
	if err := req.Validate(); err != nil {
		return SearchRequest{}, err
	}

	return req, nil
}

// ValidatePayload is ParsePayload without the result.
func ValidatePayload(data []byte) error {
	_, err := ParsePayload(data)
	return err
}

func decodeField(fields map[string]json.RawMessage, name string, dst any, reason string) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return &PayloadError{Field: name, Reason: "is required"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &PayloadError{Field: name, Reason: reason}
	}
	return nil
}
