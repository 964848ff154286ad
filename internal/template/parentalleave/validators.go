package parentalleave

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"formflow/internal/application/models"
	"formflow/internal/validation"
)

// Leave may be backdated at most this far.
const maxBackdateYears = 2

var bankAccountPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{6}$`)

func validators() validation.Registry {
	return validation.Registry{
		"period":      validatePeriod,
		"employers":   validateEmployers,
		"paymentInfo": validatePaymentInfo,
	}
}

// validatePeriod checks the requested leave period against the request
// time: the year must not lie further back than the backdating window, and
// the dates must form a forward interval.
func validatePeriod(newValue any, _ *models.Application, now time.Time) *validation.Error {
	period, ok := newValue.(map[string]any)
	if !ok {
		return &validation.Error{Message: "period must be an object", Path: "period"}
	}

	year, ok := asInt(period["year"])
	if !ok {
		return &validation.Error{Message: "year is required", Path: "period.year"}
	}
	if year < now.Year()-maxBackdateYears {
		return &validation.Error{
			Message: fmt.Sprintf("leave may be backdated at most %d years", maxBackdateYears),
			Path:    "period.year",
			Values:  map[string]any{"year": year, "earliest": now.Year() - maxBackdateYears},
		}
	}
	if year > now.Year()+1 {
		return &validation.Error{Message: "leave may be planned at most one year ahead", Path: "period.year"}
	}

	start, startErr := parseDate(period["startDate"])
	end, endErr := parseDate(period["endDate"])
	if startErr != nil {
		return &validation.Error{Message: "startDate must be YYYY-MM-DD", Path: "period.startDate"}
	}
	if endErr != nil {
		return &validation.Error{Message: "endDate must be YYYY-MM-DD", Path: "period.endDate"}
	}
	if !end.After(start) {
		return &validation.Error{Message: "endDate must be after startDate", Path: "period.endDate"}
	}
	return nil
}

// validateEmployers checks each repeater entry; error paths carry the
// entry's index so the client can mark the right row.
func validateEmployers(newValue any, _ *models.Application, _ time.Time) *validation.Error {
	entries, ok := newValue.([]any)
	if !ok {
		return &validation.Error{Message: "employers must be a list", Path: "employers"}
	}
	for i, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			return &validation.Error{
				Message: "employer entry must be an object",
				Path:    fmt.Sprintf("employers[%d]", i),
			}
		}
		if name, _ := entry["name"].(string); strings.TrimSpace(name) == "" {
			return &validation.Error{
				Message: "company name is required",
				Path:    fmt.Sprintf("employers[%d].name", i),
			}
		}
		email, _ := entry["email"].(string)
		if !strings.Contains(email, "@") {
			return &validation.Error{
				Message: "a contact email is required",
				Path:    fmt.Sprintf("employers[%d].email", i),
			}
		}
	}
	return nil
}

func validatePaymentInfo(newValue any, _ *models.Application, _ time.Time) *validation.Error {
	info, ok := newValue.(map[string]any)
	if !ok {
		return &validation.Error{Message: "paymentInfo must be an object", Path: "paymentInfo"}
	}
	bank, _ := info["bank"].(string)
	if !bankAccountPattern.MatchString(bank) {
		return &validation.Error{
			Message: "bank account must be on the form 0000-00-000000",
			Path:    "paymentInfo.bank",
		}
	}
	return nil
}

// asInt accepts the numeric shapes JSON decoding produces.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func parseDate(v any) (time.Time, error) {
	s, _ := v.(string)
	return time.Parse("2006-01-02", s)
}
