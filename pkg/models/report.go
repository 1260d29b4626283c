// Package models defines the core data model for report definitions,
// execution records and schedule rules.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Cadence is how often a report is generated and delivered.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

var (
	// ErrInvalidCadence is returned when a cadence is outside the enumerated set.
	ErrInvalidCadence = errors.New("invalid cadence")

	// ErrInvalidTimeFormat is returned when a delivery time is not a valid 24h HH:MM value.
	ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM")

	// ErrNoTopics is returned when a report definition has an empty topic list.
	ErrNoTopics = errors.New("report requires at least one topic")
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidCadence reports whether c is one of the enumerated cadences.
func ValidCadence(c Cadence) bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	default:
		return false
	}
}

// ValidTimeOfDay reports whether s is a 24h HH:MM value (00-23 / 00-59).
func ValidTimeOfDay(s string) bool {
	return timeOfDayPattern.MatchString(s)
}

// ReportDefinition describes a recurring research report owned by a user.
// The engine only ever writes the Active flag (fatal-failure shutoff);
// everything else is owned by the definition-management side.
type ReportDefinition struct {
	ID        string    `json:"id"         validate:"required"`
	OwnerID   string    `json:"owner_id"   validate:"required"`
	Title     string    `json:"title"      validate:"required,min=3"`
	Topics    []string  `json:"topics"     validate:"required,min=1,dive,required"`
	Keywords  []string  `json:"keywords,omitempty"`
	Cadence   Cadence   `json:"cadence"    validate:"required,oneof=daily weekly monthly"`
	TimeOfDay string    `json:"time_of_day" validate:"required"`
	Recipient string    `json:"recipient"  validate:"required,email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeTopics trims whitespace and drops empty and duplicate entries,
// preserving first-seen order.
func NormalizeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))

	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}

		if _, ok := seen[topic]; ok {
			continue
		}

		seen[topic] = struct{}{}

		out = append(out, topic)
	}

	return out
}

// Validate checks the definition's invariants: non-empty topic list,
// enumerated cadence and a strict HH:MM delivery time.
func (r *ReportDefinition) Validate() error {
	if len(NormalizeTopics(r.Topics)) == 0 {
		return ErrNoTopics
	}

	if !ValidCadence(r.Cadence) {
		return fmt.Errorf("%w: %q", ErrInvalidCadence, r.Cadence)
	}

	if !ValidTimeOfDay(r.TimeOfDay) {
		return fmt.Errorf("%w: %q", ErrInvalidTimeFormat, r.TimeOfDay)
	}

	return nil
}

// Snapshot captures the fields of a definition an execution needs, so a
// definition edited or deleted mid-flight cannot change a running execution.
type Snapshot struct {
	ReportID  string   `json:"report_id"`
	OwnerID   string   `json:"owner_id"`
	Title     string   `json:"title"`
	Topics    []string `json:"topics"`
	Keywords  []string `json:"keywords,omitempty"`
	Cadence   Cadence  `json:"cadence"`
	Recipient string   `json:"recipient"`
}

// Snapshot returns an immutable copy of the delivery-relevant fields.
func (r *ReportDefinition) Snapshot() Snapshot {
	return Snapshot{
		ReportID:  r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Topics:    NormalizeTopics(r.Topics),
		Keywords:  append([]string(nil), r.Keywords...),
		Cadence:   r.Cadence,
		Recipient: r.Recipient,
	}
}
