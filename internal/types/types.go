package types

// Status is one attendance state for a person in a session. Blank ("") means
// unmarked; unmarked records never participate in rate aggregation.
type Status string

const (
	StatusPresent        Status = "present"
	StatusOnline         Status = "online"
	StatusExcused        Status = "excused"
	StatusTardy          Status = "tardy"
	StatusAbsent         Status = "absent"
	StatusEarlyLeave     Status = "early_leave"
	StatusVeryEarlyLeave Status = "very_early_leave"
	StatusNonService     Status = "non_service"
)

// AllStatuses is the closed status set in display order.
var AllStatuses = []Status{
	StatusPresent,
	StatusOnline,
	StatusExcused,
	StatusTardy,
	StatusAbsent,
	StatusEarlyLeave,
	StatusVeryEarlyLeave,
	StatusNonService,
}

// Known reports whether s belongs to the closed status set.
func (s Status) Known() bool {
	switch s {
	case StatusPresent, StatusOnline, StatusExcused, StatusTardy,
		StatusAbsent, StatusEarlyLeave, StatusVeryEarlyLeave, StatusNonService:
		return true
	}
	return false
}

// DayNames holds the canonical short weekday names, Mon first to match ISO
// weekday numbering (1..7).
var DayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Person is one roster member. Empty ServiceDays means scheduled every day.
type Person struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Active      bool     `json:"active"`
	Tags        []string `json:"tags"`
	ServiceDays []string `json:"serviceDays"`
}

// EventType is one kind of session. Weight multiplies record scores when
// event weighting is enabled by the caller.
type EventType struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// RequiredEventID is the event type that coverage tracking is measured
// against; the rest are supplemental.
const RequiredEventID = "work"

// DefaultEventTypes seeds a fresh store.
var DefaultEventTypes = []EventType{
	{ID: "work", Label: "Office", Weight: 1.0},
	{ID: "meeting", Label: "Morning Meeting", Weight: 0.25},
	{ID: "gospel", Label: "Afternoon Meeting", Weight: 0.2},
}

// Session is one (date, event type) attendance-taking instance.
// ID is always "{date}_{eventTypeId}" and DOW the ISO weekday of Date.
type Session struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	DOW         int    `json:"dow"`
	EventTypeID string `json:"eventTypeId"`
	Notes       string `json:"notes,omitempty"`
}

// SessionID builds the canonical session identity for a date and event type.
func SessionID(date, eventTypeID string) string {
	return date + "_" + eventTypeID
}

// Record is one person's attendance entry for a session. At most one record
// exists per (SessionID, PersonID). LeaveStatus overlays an early departure
// penalty on the base status.
type Record struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	PersonID    string `json:"personId"`
	Status      Status `json:"status,omitempty"`
	MinutesLate int    `json:"minutesLate,omitempty"`
	Notes       string `json:"notes,omitempty"`
	LeaveStatus Status `json:"leaveStatus,omitempty"`
}

// Thresholds are the legend cut points. Mid is advisory display-only; tier
// classification uses Low and High.
type Thresholds struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// DefaultThresholds seeds the legend cut points for a fresh store.
var DefaultThresholds = Thresholds{Low: 0.75, Mid: 0.89, High: 0.90}

// DefaultTardyMins is the default minutes-late threshold for marking tardy.
const DefaultTardyMins = 5

// Settings is the singleton app configuration document (ID "app").
type Settings struct {
	ID                 string     `json:"id"`
	TeamName           string     `json:"teamName"`
	TardyThresholdMins int        `json:"tardyThresholdMins"`
	LegendThresholds   Thresholds `json:"legendThresholds"`
}

// SettingsID is the fixed id of the settings singleton.
const SettingsID = "app"

// DefaultSettings seeds a fresh store.
func DefaultSettings() Settings {
	return Settings{
		ID:                 SettingsID,
		TeamName:           "Attendance",
		TardyThresholdMins: DefaultTardyMins,
		LegendThresholds:   DefaultThresholds,
	}
}

// Snapshot is the backend-independent interchange document used for backup
// and restore.
type Snapshot struct {
	People     []Person    `json:"people"`
	EventTypes []EventType `json:"eventTypes"`
	Sessions   []Session   `json:"sessions"`
	Records    []Record    `json:"records"`
	Settings   []Settings  `json:"settings"`
}

// RangeData is one immutable {sessions, records} fetch, the unit of input for
// an aggregation pass.
type RangeData struct {
	Sessions []Session `json:"sessions"`
	Records  []Record  `json:"records"`
}
