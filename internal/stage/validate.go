package stage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// RejectReason classifies why a candidate field was not accepted. Rejections
// are data, not errors: they drive the corrective reply and never touch the
// profile.
type RejectReason string

const (
	RejectInvalidName          RejectReason = "invalid_name"
	RejectUnsupportedProcedure RejectReason = "unsupported_procedure"
	RejectDateInPast           RejectReason = "date_in_past"
	RejectDateTooFar           RejectReason = "date_too_far"
	RejectOutsideBusinessHours RejectReason = "outside_business_hours"
)

// Rejection names the field that failed and why.
type Rejection struct {
	Field  string       `json:"field"`
	Reason RejectReason `json:"reason"`
}

// Validation is the outcome of checking one turn's candidates.
type Validation struct {
	Accepted Candidates
	Rejected []Rejection
}

// RejectedField reports whether the named field was rejected this turn.
func (v Validation) RejectedField(field string) bool {
	for _, r := range v.Rejected {
		if r.Field == field {
			return true
		}
	}
	return false
}

// Rules carries the business limits the validator enforces.
type Rules struct {
	// AllowedProcedures is the canonical procedure set the clinic offers.
	AllowedProcedures []string
	// Opening/Closing delimit operating hours; the lower bound is inclusive,
	// the upper exclusive ("08:00" to "18:00" accepts 08:00 but not 18:00).
	Opening string
	Closing string
	// MaxBookingDays caps how far ahead an appointment can be requested.
	MaxBookingDays int
}

// DefaultRules mirror the clinic's standing configuration.
func DefaultRules() Rules {
	return Rules{
		AllowedProcedures: []string{
			"limpeza", "consulta", "avaliacao", "ortodontia", "restauracao",
			"canal", "extracao", "clareamento", "implante",
		},
		Opening:        "08:00",
		Closing:        "18:00",
		MaxBookingDays: 90,
	}
}

// Validator checks candidates against business rules and normalizes accepted
// values. It is pure: it never mutates the profile it is given.
type Validator struct {
	allowed      map[string]struct{}
	allowedOrder []string
	openingMin   int
	closingMin   int
	maxDays      int
}

// NewValidator builds a validator from the supplied rules.
func NewValidator(rules Rules) (*Validator, error) {
	opening, err := parseClock(rules.Opening)
	if err != nil {
		return nil, fmt.Errorf("stage: invalid opening time %q: %w", rules.Opening, err)
	}
	closing, err := parseClock(rules.Closing)
	if err != nil {
		return nil, fmt.Errorf("stage: invalid closing time %q: %w", rules.Closing, err)
	}
	if closing <= opening {
		return nil, fmt.Errorf("stage: closing %q must be after opening %q", rules.Closing, rules.Opening)
	}
	if len(rules.AllowedProcedures) == 0 {
		return nil, fmt.Errorf("stage: allowed procedure set cannot be empty")
	}
	maxDays := rules.MaxBookingDays
	if maxDays <= 0 {
		maxDays = 90
	}

	allowed := make(map[string]struct{}, len(rules.AllowedProcedures))
	order := make([]string, 0, len(rules.AllowedProcedures))
	for _, p := range rules.AllowedProcedures {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := allowed[p]; dup {
			continue
		}
		allowed[p] = struct{}{}
		order = append(order, p)
	}

	return &Validator{
		allowed:      allowed,
		allowedOrder: order,
		openingMin:   opening,
		closingMin:   closing,
		maxDays:      maxDays,
	}, nil
}

// AllowedProcedures returns the configured set in stable order, for listing
// in corrective replies.
func (v *Validator) AllowedProcedures() []string {
	out := make([]string, len(v.allowedOrder))
	copy(out, v.allowedOrder)
	return out
}

// Validate checks each present candidate independently. Accepted values are
// normalized; rejected ones are reported with a reason and left out of the
// accepted set.
func (v *Validator) Validate(c Candidates, receivedAt time.Time) Validation {
	var out Validation

	if c.FullName != "" {
		if name, ok := normalizeName(c.FullName); ok {
			out.Accepted.FullName = name
		} else {
			out.Rejected = append(out.Rejected, Rejection{Field: "full_name", Reason: RejectInvalidName})
		}
	}

	if c.Procedure != "" {
		proc := strings.ToLower(strings.TrimSpace(c.Procedure))
		if _, ok := v.allowed[proc]; ok {
			out.Accepted.Procedure = proc
		} else {
			out.Rejected = append(out.Rejected, Rejection{Field: "procedure", Reason: RejectUnsupportedProcedure})
		}
	}

	if c.Day != nil {
		today := dateOnly(receivedAt)
		day := dateOnly(*c.Day)
		switch {
		case day.Before(today):
			out.Rejected = append(out.Rejected, Rejection{Field: "desired_day", Reason: RejectDateInPast})
		case day.After(today.AddDate(0, 0, v.maxDays)):
			out.Rejected = append(out.Rejected, Rejection{Field: "desired_day", Reason: RejectDateTooFar})
		default:
			out.Accepted.Day = &day
		}
	}

	if c.Time != "" {
		minutes, err := parseClock(c.Time)
		if err == nil && minutes >= v.openingMin && minutes < v.closingMin {
			out.Accepted.Time = c.Time
		} else {
			out.Rejected = append(out.Rejected, Rejection{Field: "desired_time", Reason: RejectOutsideBusinessHours})
		}
	}

	// The window hint needs no business rule; the extractor only emits the
	// three canonical values.
	out.Accepted.Window = c.Window

	return out
}

// WithinHours reports whether a canonical HH:MM falls inside operating hours.
func (v *Validator) WithinHours(clock string) bool {
	minutes, err := parseClock(clock)
	return err == nil && minutes >= v.openingMin && minutes < v.closingMin
}

// lowercase connectives that stay lowercase in Brazilian names.
var namePrepositions = map[string]struct{}{
	"de": {}, "da": {}, "do": {}, "das": {}, "dos": {}, "e": {},
}

// normalizeName title-cases the name, keeping connective particles lowercase.
// At least one alphabetic token of two or more letters is required.
func normalizeName(raw string) (string, bool) {
	tokens := strings.Fields(strings.TrimSpace(raw))
	if len(tokens) == 0 {
		return "", false
	}

	hasWord := false
	normalized := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		if !alphabetic(tok) {
			return "", false
		}
		lower := strings.ToLower(tok)
		if len([]rune(lower)) >= 2 {
			hasWord = true
		}
		if _, prep := namePrepositions[lower]; prep && i > 0 {
			normalized = append(normalized, lower)
			continue
		}
		normalized = append(normalized, capitalize(lower))
	}
	if !hasWord {
		return "", false
	}
	name := strings.Join(normalized, " ")
	if len(name) > 100 {
		return "", false
	}
	return name, true
}

func alphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

func capitalize(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// parseClock converts canonical HH:MM to minutes since midnight.
func parseClock(clock string) (int, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("out of range clock %q", clock)
	}
	return hour*60 + minute, nil
}
