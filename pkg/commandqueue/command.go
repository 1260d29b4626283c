// Package commandqueue carries manual operator commands such as run-now
// and resend from the API to the workers over a Redis queue.
package commandqueue

import (
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

type CommandType string

const (
	// CommandRunNow requests an immediate execution for the current
	// period. The conditional create still applies, so a run-now in a
	// period that already executed is a no-op.
	CommandRunNow CommandType = "run_now"

	// CommandResend re-sends a completed execution's stored content.
	CommandResend CommandType = "resend"

	// CommandResume drives a pending or processing execution left behind
	// by a crashed worker to a terminal status, keeping its attempt count.
	CommandResume CommandType = "resume"
)

type Command struct {
	Type        CommandType `json:"type"`
	ReportID    string      `json:"report_id"`
	PeriodKey   string      `json:"period_key,omitempty"`
	RequestedBy string      `json:"requested_by,omitempty"`
	EnqueuedAt  time.Time   `json:"enqueued_at"`
}

var commandSchema = map[string]any{
	"type":     "object",
	"required": []any{"type", "report_id"},
	"properties": map[string]any{
		"type": map[string]any{
			"type": "string",
			"enum": []any{string(CommandRunNow), string(CommandResend), string(CommandResume)},
		},
		"report_id": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"period_key": map[string]any{
			"type": "string",
		},
		"requested_by": map[string]any{
			"type": "string",
		},
		"enqueued_at": map[string]any{
			"type": "string",
		},
	},
	"additionalProperties": false,
}

// ValidatePayload checks a raw queue payload against the command schema
// before it is unmarshaled, so malformed entries are rejected with a
// description instead of producing half-filled commands.
func ValidatePayload(payload []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(commandSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate command payload: %w", err)
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid command payload: %s", strings.Join(details, "; "))
	}

	return nil
}

func (c Command) Validate() error {
	switch c.Type {
	case CommandRunNow, CommandResend, CommandResume:
	default:
		return fmt.Errorf("unsupported command type: %s", c.Type)
	}

	if c.ReportID == "" {
		return fmt.Errorf("command requires a report id")
	}

	if (c.Type == CommandResend || c.Type == CommandResume) && c.PeriodKey == "" {
		return fmt.Errorf("%s command requires a period key", c.Type)
	}

	return nil
}
