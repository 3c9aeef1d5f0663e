package service

import (
	"fmt"
	"time"

	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
)

const (
	maxFetchLimit = 1000
	maxPageSize   = 50
)

// ValidationError reports a request rejected before any work started.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	time.RFC3339,
}

// parseDate accepts the supported date spellings, interpreting naive inputs
// in the normalized zone. An empty input yields the zero time.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, model.FixedZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{Field: field, Reason: fmt.Sprintf("unrecognized date %q", value)}
}

// resolveAccount looks up the account and requires it to be enabled.
func (s *Service) resolveAccount(address string) (config.Account, error) {
	if address == "" {
		return config.Account{}, &ValidationError{Field: "account", Reason: "is required"}
	}
	account, ok := s.accounts.Get(address)
	if !ok {
		return config.Account{}, &ValidationError{Field: "account", Reason: fmt.Sprintf("%s is not configured", address)}
	}
	if !account.Enabled {
		return config.Account{}, &ValidationError{Field: "account", Reason: fmt.Sprintf("%s is disabled", address)}
	}
	return account, nil
}

func validateLimit(limit int) (int, error) {
	if limit == 0 {
		return 10, nil
	}
	if limit < 1 || limit > maxFetchLimit {
		return 0, &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", maxFetchLimit)}
	}
	return limit, nil
}

func validatePageSize(size int) (int, error) {
	if size == 0 {
		return 10, nil
	}
	if size < 1 || size > maxPageSize {
		return 0, &ValidationError{Field: "page_size", Reason: fmt.Sprintf("must be between 1 and %d", maxPageSize)}
	}
	return size, nil
}

func validateSearchField(field string) (string, error) {
	switch field {
	case "":
		return "all", nil
	case "sender", "recipient", "cc", "subject", "content", "attachment", "all":
		return field, nil
	default:
		return "", &ValidationError{Field: "field", Reason: fmt.Sprintf("unknown search field %q", field)}
	}
}

func validateDateWindow(start, end time.Time) error {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return nil
}
