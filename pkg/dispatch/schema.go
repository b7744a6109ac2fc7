package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trempist/trempist/pkg/llm"
	"github.com/trempist/trempist/pkg/models"
)

// Tool names form the closed contract with the model. Anything outside this
// set is rejected before execution.
const (
	ToolUpdateUserRecords    = "update_user_records"
	ToolViewUserRecords      = "view_user_records"
	ToolDeleteUserRecord     = "delete_user_record"
	ToolDeleteAllUserRecords = "delete_all_user_records"
	ToolShowHelp             = "show_help"
)

// Tools returns the definitions handed to the LLM adapter on every call.
func Tools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ToolUpdateUserRecords,
			Description: "יצירה או עדכון של נסיעה (נהג) או בקשת טרמפ (טרמפיסט)",
			Parameters:  json.RawMessage(updateRecordSchema),
		},
		{
			Name:        ToolViewUserRecords,
			Description: "הצגת הנסיעות והבקשות הרשומות של המשתמש",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolDeleteUserRecord,
			Description: "מחיקת נסיעה או בקשה לפי מזהה",
			Parameters:  json.RawMessage(deleteRecordSchema),
		},
		{
			Name:        ToolDeleteAllUserRecords,
			Description: "מחיקת כל הרשומות של המשתמש",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolShowHelp,
			Description: "הסבר על השירות ואופן השימוש",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

const updateRecordSchema = `{
	"type": "object",
	"properties": {
		"role": {"type": "string", "enum": ["driver", "hitchhiker"]},
		"origin": {"type": "string"},
		"destination": {"type": "string"},
		"days": {"type": "array", "items": {"type": "string", "enum": ["sunday","monday","tuesday","wednesday","thursday","friday","saturday"]}},
		"departure_time": {"type": "string", "description": "HH:MM"},
		"return_time": {"type": "string", "description": "HH:MM"},
		"travel_date": {"type": "string", "description": "YYYY-MM-DD"},
		"earliest": {"type": "string", "description": "HH:MM"},
		"latest": {"type": "string", "description": "HH:MM"},
		"flexibility_minutes": {"type": "integer", "minimum": 0, "maximum": 240},
		"available_seats": {"type": "integer", "minimum": 1},
		"record_id": {"type": "string"},
		"notes": {"type": "string"}
	},
	"required": ["role", "origin", "destination"]
}`

const deleteRecordSchema = `{
	"type": "object",
	"properties": {
		"role": {"type": "string", "enum": ["driver", "hitchhiker"]},
		"record_id": {"type": "string"}
	},
	"required": ["role", "record_id"]
}`

// SchemaError marks an argument payload the model produced outside the
// contract. Its detail lands in Result.ErrorMsg, never in the user's reply.
type SchemaError struct {
	Tool   string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Detail)
}

func schemaErrf(tool, format string, args ...any) *SchemaError {
	return &SchemaError{Tool: tool, Detail: fmt.Sprintf(format, args...)}
}

// updateRecordArgs mirrors updateRecordSchema.
type updateRecordArgs struct {
	Role               string   `json:"role"`
	Origin             string   `json:"origin"`
	Destination        string   `json:"destination"`
	Days               []string `json:"days"`
	DepartureTime      string   `json:"departure_time"`
	ReturnTime         string   `json:"return_time"`
	TravelDate         string   `json:"travel_date"`
	Earliest           string   `json:"earliest"`
	Latest             string   `json:"latest"`
	FlexibilityMinutes int      `json:"flexibility_minutes"`
	AvailableSeats     int      `json:"available_seats"`
	RecordID           string   `json:"record_id"`
	Notes              string   `json:"notes"`
}

type deleteRecordArgs struct {
	Role     string `json:"role"`
	RecordID string `json:"record_id"`
}

func decodeArgs(tool string, raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return schemaErrf(tool, "arguments do not match schema: %v", err)
	}
	return nil
}

// validate checks the semantic constraints the JSON schema cannot express.
func (a *updateRecordArgs) validate() error {
	role, err := models.ParseRole(a.Role)
	if err != nil {
		return schemaErrf(ToolUpdateUserRecords, "%v", err)
	}
	if strings.TrimSpace(a.Origin) == "" || strings.TrimSpace(a.Destination) == "" {
		return schemaErrf(ToolUpdateUserRecords, "origin and destination are required")
	}

	for _, field := range []struct{ name, val string }{
		{"departure_time", a.DepartureTime},
		{"return_time", a.ReturnTime},
		{"earliest", a.Earliest},
		{"latest", a.Latest},
	} {
		if field.val == "" {
			continue
		}
		if _, err := models.ParseClock(field.val); err != nil {
			return schemaErrf(ToolUpdateUserRecords, "%s: %v", field.name, err)
		}
	}
	if a.TravelDate != "" {
		if _, err := models.ParseDate(a.TravelDate); err != nil {
			return schemaErrf(ToolUpdateUserRecords, "travel_date: %v", err)
		}
	}
	for _, day := range a.Days {
		if _, err := models.ParseWeekday(day); err != nil {
			return schemaErrf(ToolUpdateUserRecords, "days: %v", err)
		}
	}
	if a.FlexibilityMinutes < 0 || a.FlexibilityMinutes > models.MaxFlexibilityMinutes {
		return schemaErrf(ToolUpdateUserRecords, "flexibility_minutes out of range [0, %d]", models.MaxFlexibilityMinutes)
	}
	if a.AvailableSeats < 0 {
		return schemaErrf(ToolUpdateUserRecords, "available_seats must be positive")
	}

	switch role {
	case models.RoleDriver:
		if a.DepartureTime == "" {
			return schemaErrf(ToolUpdateUserRecords, "driver rides need a departure_time")
		}
		if len(a.Days) == 0 && a.TravelDate == "" {
			return schemaErrf(ToolUpdateUserRecords, "driver rides need days or a travel_date")
		}
		if len(a.Days) > 0 && a.TravelDate != "" {
			return schemaErrf(ToolUpdateUserRecords, "driver rides are recurring or one-shot, not both")
		}
	case models.RoleHitchhiker:
		if a.TravelDate == "" {
			return schemaErrf(ToolUpdateUserRecords, "hitchhiker requests need a travel_date")
		}
		hasWindow := a.Earliest != "" && a.Latest != ""
		if a.DepartureTime == "" && !hasWindow {
			return schemaErrf(ToolUpdateUserRecords, "hitchhiker requests need a departure_time or an earliest/latest window")
		}
		if (a.Earliest != "") != (a.Latest != "") {
			return schemaErrf(ToolUpdateUserRecords, "earliest and latest come together")
		}
	}
	return nil
}

func (a *deleteRecordArgs) validate() error {
	if _, err := models.ParseRole(a.Role); err != nil {
		return schemaErrf(ToolDeleteUserRecord, "%v", err)
	}
	if strings.TrimSpace(a.RecordID) == "" {
		return schemaErrf(ToolDeleteUserRecord, "record_id is required")
	}
	return nil
}
