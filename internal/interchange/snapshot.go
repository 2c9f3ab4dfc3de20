// Package interchange reads and writes the backend-independent backup
// document. Historical exports are messy: collections may be arrays, keyed
// objects, or a single bare object, statuses use retired spellings, and
// service days may be compact letter strings. Import normalizes all of it
// rather than rejecting it.
package interchange

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rollbook/rollbook/internal/analysis"
	"github.com/rollbook/rollbook/internal/types"
)

// ParseSnapshot decodes a backup payload into a normalized snapshot.
// Collections absent from the payload come back as nil slices so the store
// can leave them untouched; present-but-empty collections are empty non-nil
// slices.
func ParseSnapshot(raw []byte) (types.Snapshot, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	var snap types.Snapshot

	if peopleRaw, ok := doc["people"]; ok {
		entries, err := normalizeCollection(peopleRaw, hasAnyKey("displayName", "serviceDays"))
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("decode people: %w", err)
		}
		snap.People = make([]types.Person, 0, len(entries))
		for _, e := range entries {
			snap.People = append(snap.People, personFromEntry(e))
		}
	}

	if typesRaw, ok := doc["eventTypes"]; ok {
		entries, err := normalizeCollection(typesRaw, hasAnyKey("label", "weight"))
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("decode event types: %w", err)
		}
		snap.EventTypes = make([]types.EventType, 0, len(entries))
		for _, e := range entries {
			var et types.EventType
			if err := remarshal(e, &et); err != nil {
				return types.Snapshot{}, fmt.Errorf("decode event type: %w", err)
			}
			snap.EventTypes = append(snap.EventTypes, et)
		}
	}

	if sessionsRaw, ok := doc["sessions"]; ok {
		entries, err := normalizeCollection(sessionsRaw, hasAnyKey("date", "eventTypeId"))
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("decode sessions: %w", err)
		}
		snap.Sessions = make([]types.Session, 0, len(entries))
		for _, e := range entries {
			var s types.Session
			if err := remarshal(e, &s); err != nil {
				return types.Snapshot{}, fmt.Errorf("decode session: %w", err)
			}
			// Never trust the stored weekday.
			if dow := analysis.ISOWeekday(s.Date); dow != 0 {
				s.DOW = dow
			}
			if s.ID == "" && s.Date != "" && s.EventTypeID != "" {
				s.ID = types.SessionID(s.Date, s.EventTypeID)
			}
			snap.Sessions = append(snap.Sessions, s)
		}
	}

	if recordsRaw, ok := doc["records"]; ok {
		entries, err := normalizeCollection(recordsRaw, hasAnyKey("personId", "sessionId", "status"))
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("decode records: %w", err)
		}
		snap.Records = make([]types.Record, 0, len(entries))
		for _, e := range entries {
			snap.Records = append(snap.Records, recordFromEntry(e))
		}
	}

	if settingsRaw, ok := doc["settings"]; ok {
		entries, err := normalizeCollection(settingsRaw, hasAnyKey("teamName", "legendThresholds", "tardyThresholdMins"))
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("decode settings: %w", err)
		}
		snap.Settings = make([]types.Settings, 0, len(entries))
		for _, e := range entries {
			var s types.Settings
			if err := remarshal(e, &s); err != nil {
				return types.Snapshot{}, fmt.Errorf("decode settings: %w", err)
			}
			if s.ID == "" {
				s.ID = types.SettingsID
			}
			snap.Settings = append(snap.Settings, s)
		}
	}

	return snap, nil
}

// ExportSnapshot renders a snapshot as indented JSON for download.
func ExportSnapshot(snap types.Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// normalizeCollection accepts an array, a map of id to object, or one bare
// object (detected by isSingle), and returns a uniform list of entries with
// the map key folded into the "id" field.
func normalizeCollection(raw json.RawMessage, isSingle func(map[string]any) bool) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return []map[string]any{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []map[string]any
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if isSingle != nil && isSingle(obj) {
		return []map[string]any{obj}, nil
	}
	entries := make([]map[string]any, 0, len(obj))
	for id, value := range obj {
		entry, ok := value.(map[string]any)
		if !ok {
			entry = map[string]any{}
		}
		if _, exists := entry["id"]; !exists {
			entry["id"] = id
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func hasAnyKey(keys ...string) func(map[string]any) bool {
	return func(obj map[string]any) bool {
		for _, k := range keys {
			if _, ok := obj[k]; ok {
				return true
			}
		}
		return false
	}
}

func remarshal(entry map[string]any, dest any) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

func personFromEntry(entry map[string]any) types.Person {
	days := entry["serviceDays"]
	delete(entry, "serviceDays")
	var p types.Person
	if err := remarshal(entry, &p); err != nil {
		p = types.Person{}
		p.ID, _ = entry["id"].(string)
	}
	p.ServiceDays = ParseServiceDays(days)
	if p.Tags == nil {
		p.Tags = []string{}
	}
	// A person without an explicit active flag is active; old exports only
	// wrote the flag when someone was archived.
	if _, ok := entry["active"]; !ok {
		p.Active = true
	}
	return p
}

func recordFromEntry(entry map[string]any) types.Record {
	status, _ := entry["status"].(string)
	leave, _ := entry["leaveStatus"].(string)
	delete(entry, "status")
	delete(entry, "leaveStatus")
	var r types.Record
	if err := remarshal(entry, &r); err != nil {
		r = types.Record{}
		r.ID, _ = entry["id"].(string)
	}
	r.Status = NormalizeStatus(status)
	r.LeaveStatus = NormalizeStatus(leave)
	if r.Status != types.StatusTardy {
		r.MinutesLate = 0
	}
	return r
}

// NormalizeStatus maps a raw status string onto the closed set. Retired
// spellings are translated; anything unrecognized becomes blank rather than
// "present", so a bad import cannot inflate historical data.
func NormalizeStatus(raw string) types.Status {
	s := types.Status(strings.TrimSpace(raw))
	if s.Known() {
		return s
	}
	switch s {
	case "non-service":
		return types.StatusNonService
	case "unknown":
		return types.StatusExcused
	}
	return ""
}

// dayTokens maps compact day letters to canonical names. Two-letter tokens
// are tried before single letters so "Th" and "Su" win over "T"/"S".
var dayTokens = map[string]string{
	"M": "Mon", "T": "Tue", "W": "Wed", "R": "Thu", "TH": "Thu",
	"F": "Fri", "S": "Sat", "SU": "Sun", "U": "Sun",
}

var validDays = map[string]bool{
	"Mon": true, "Tue": true, "Wed": true, "Thu": true,
	"Fri": true, "Sat": true, "Sun": true,
}

// ParseServiceDays accepts either an array of day names or a compact letter
// string such as "MWF" or "MTWThF". Unknown tokens are dropped and the
// result is deduplicated, preserving first-seen order.
func ParseServiceDays(value any) []string {
	switch v := value.(type) {
	case nil:
		return []string{}
	case []string:
		return dedupDays(v)
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return dedupDays(names)
	case string:
		return parseCompactDays(v)
	default:
		return []string{}
	}
}

func dedupDays(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if validDays[n] && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func parseCompactDays(s string) []string {
	compact := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	var names []string
	for i := 0; i < len(compact); {
		if i+2 <= len(compact) {
			if name, ok := dayTokens[compact[i:i+2]]; ok {
				names = append(names, name)
				i += 2
				continue
			}
		}
		if name, ok := dayTokens[compact[i:i+1]]; ok {
			names = append(names, name)
		}
		i++
	}
	return dedupDays(names)
}
