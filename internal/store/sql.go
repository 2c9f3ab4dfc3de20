package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rollbook/rollbook/internal/analysis"
	"github.com/rollbook/rollbook/internal/types"
)

// sqlProvider implements Provider over database/sql. The sqlite and postgres
// backends differ only in their DDL, placeholder style, and table prefix.
type sqlProvider struct {
	notifier
	db     *sql.DB
	mode   string
	prefix string // "schema." for postgres, "" for sqlite
	dollar bool   // rewrite ? placeholders to $1..$n
	ddl    []string
}

func (p *sqlProvider) Mode() string { return p.mode }

func (p *sqlProvider) Close() error { return p.db.Close() }

func (p *sqlProvider) table(name string) string { return p.prefix + name }

// q rewrites ? placeholders for the postgres dialect and expands {{t}} table
// prefixes.
func (p *sqlProvider) q(query string) string {
	query = strings.ReplaceAll(query, "{{", p.prefix)
	query = strings.ReplaceAll(query, "}}", "")
	if !p.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Init creates the schema and seeds the settings singleton and the default
// event types when absent.
func (p *sqlProvider) Init(ctx context.Context) error {
	for _, stmt := range p.ddl {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	var n int
	if err := p.db.QueryRowContext(ctx, p.q(`SELECT COUNT(*) FROM {{settings}} WHERE id = ?`), types.SettingsID).Scan(&n); err != nil {
		return fmt.Errorf("check settings: %w", err)
	}
	if n == 0 {
		if _, err := p.saveSettings(ctx, types.DefaultSettings()); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}

	if err := p.db.QueryRowContext(ctx, p.q(`SELECT COUNT(*) FROM {{event_types}}`)).Scan(&n); err != nil {
		return fmt.Errorf("check event types: %w", err)
	}
	if n == 0 {
		for _, et := range types.DefaultEventTypes {
			if err := p.saveEventType(ctx, et); err != nil {
				return fmt.Errorf("seed event types: %w", err)
			}
		}
	}
	return nil
}

// Settings

func (p *sqlProvider) GetSettings(ctx context.Context) (types.Settings, error) {
	var s types.Settings
	err := p.db.QueryRowContext(ctx, p.q(`
		SELECT id, team_name, tardy_threshold_mins, low_threshold, mid_threshold, high_threshold
		FROM {{settings}} WHERE id = ?
	`), types.SettingsID).Scan(
		&s.ID, &s.TeamName, &s.TardyThresholdMins,
		&s.LegendThresholds.Low, &s.LegendThresholds.Mid, &s.LegendThresholds.High,
	)
	if err == sql.ErrNoRows {
		return types.DefaultSettings(), nil
	}
	if err != nil {
		return types.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (p *sqlProvider) saveSettings(ctx context.Context, s types.Settings) (types.Settings, error) {
	if s.ID == "" {
		s.ID = types.SettingsID
	}
	_, err := p.db.ExecContext(ctx, p.q(`
		INSERT INTO {{settings}} (id, team_name, tardy_threshold_mins, low_threshold, mid_threshold, high_threshold)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			team_name = excluded.team_name,
			tardy_threshold_mins = excluded.tardy_threshold_mins,
			low_threshold = excluded.low_threshold,
			mid_threshold = excluded.mid_threshold,
			high_threshold = excluded.high_threshold
	`), s.ID, s.TeamName, s.TardyThresholdMins,
		s.LegendThresholds.Low, s.LegendThresholds.Mid, s.LegendThresholds.High)
	if err != nil {
		return types.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}

func (p *sqlProvider) SaveSettings(ctx context.Context, s types.Settings) (types.Settings, error) {
	saved, err := p.saveSettings(ctx, s)
	if err == nil {
		p.notify()
	}
	return saved, err
}

// People

func (p *sqlProvider) ListPeople(ctx context.Context) ([]types.Person, error) {
	rows, err := p.db.QueryContext(ctx, p.q(`
		SELECT id, display_name, active, tags, service_days
		FROM {{people}} ORDER BY display_name
	`))
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []types.Person
	for rows.Next() {
		var person types.Person
		var tags, days string
		if err := rows.Scan(&person.ID, &person.DisplayName, &person.Active, &tags, &days); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		person.Tags = decodeStrings(tags)
		person.ServiceDays = decodeStrings(days)
		people = append(people, person)
	}
	return people, rows.Err()
}

func (p *sqlProvider) AddPerson(ctx context.Context, displayName string, opts PersonOptions) (types.Person, error) {
	person := types.Person{
		ID:          "p_" + uuid.NewString(),
		DisplayName: displayName,
		Active:      opts.Active,
		Tags:        opts.Tags,
		ServiceDays: opts.ServiceDays,
	}
	if err := p.SavePerson(ctx, person); err != nil {
		return types.Person{}, err
	}
	return person, nil
}

func (p *sqlProvider) SavePerson(ctx context.Context, person types.Person) error {
	if person.ID == "" {
		return fmt.Errorf("save person: missing id")
	}
	_, err := p.db.ExecContext(ctx, p.q(`
		INSERT INTO {{people}} (id, display_name, active, tags, service_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			active = excluded.active,
			tags = excluded.tags,
			service_days = excluded.service_days
	`), person.ID, person.DisplayName, person.Active,
		encodeStrings(person.Tags), encodeStrings(person.ServiceDays))
	if err != nil {
		return fmt.Errorf("save person: %w", err)
	}
	p.notify()
	return nil
}

// DeletePerson removes the person and, in the same transaction, every record
// referencing them.
func (p *sqlProvider) DeletePerson(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{records}} WHERE person_id = ?`), id); err != nil {
		return fmt.Errorf("delete person records: %w", err)
	}
	res, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{people}} WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	p.notify()
	return nil
}

// Event types

func (p *sqlProvider) ListEventTypes(ctx context.Context) ([]types.EventType, error) {
	rows, err := p.db.QueryContext(ctx, p.q(`SELECT id, label, weight FROM {{event_types}} ORDER BY id`))
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	defer rows.Close()

	var out []types.EventType
	for rows.Next() {
		var et types.EventType
		if err := rows.Scan(&et.ID, &et.Label, &et.Weight); err != nil {
			return nil, fmt.Errorf("scan event type: %w", err)
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func (p *sqlProvider) saveEventType(ctx context.Context, et types.EventType) error {
	if et.ID == "" {
		return fmt.Errorf("save event type: missing id")
	}
	_, err := p.db.ExecContext(ctx, p.q(`
		INSERT INTO {{event_types}} (id, label, weight)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET label = excluded.label, weight = excluded.weight
	`), et.ID, et.Label, et.Weight)
	if err != nil {
		return fmt.Errorf("save event type: %w", err)
	}
	return nil
}

func (p *sqlProvider) SaveEventType(ctx context.Context, et types.EventType) error {
	if err := p.saveEventType(ctx, et); err != nil {
		return err
	}
	p.notify()
	return nil
}

func (p *sqlProvider) DeleteEventType(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, p.q(`DELETE FROM {{event_types}} WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete event type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	p.notify()
	return nil
}

// Sessions and records

func (p *sqlProvider) UpsertSession(ctx context.Context, date, eventTypeID, notes string) (types.Session, error) {
	session := types.Session{
		ID:          types.SessionID(date, eventTypeID),
		Date:        date,
		DOW:         analysis.ISOWeekday(date),
		EventTypeID: eventTypeID,
		Notes:       notes,
	}
	_, err := p.db.ExecContext(ctx, p.q(`
		INSERT INTO {{sessions}} (id, date, dow, event_type_id, notes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET dow = excluded.dow, notes = excluded.notes
	`), session.ID, session.Date, session.DOW, session.EventTypeID, session.Notes)
	if err != nil {
		return types.Session{}, fmt.Errorf("upsert session: %w", err)
	}
	p.notify()
	return session, nil
}

const recordColumns = `id, session_id, person_id, status, minutes_late, notes, leave_status`

func scanRecord(rows *sql.Rows) (types.Record, error) {
	var r types.Record
	var status, leave string
	if err := rows.Scan(&r.ID, &r.SessionID, &r.PersonID, &status, &r.MinutesLate, &r.Notes, &leave); err != nil {
		return types.Record{}, err
	}
	r.Status = types.Status(status)
	r.LeaveStatus = types.Status(leave)
	return r, nil
}

func (p *sqlProvider) RecordsForSession(ctx context.Context, sessionID string) ([]types.Record, error) {
	rows, err := p.db.QueryContext(ctx, p.q(`
		SELECT `+recordColumns+` FROM {{records}} WHERE session_id = ?
	`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("records for session: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRecordStatus upserts by the (session, person) composite key. Minutes
// late only survive on a tardy status; concurrent writers resolve as
// last-write-wins at this row.
func (p *sqlProvider) SetRecordStatus(ctx context.Context, set SetRecord) (types.Record, error) {
	if set.Status != types.StatusTardy {
		set.MinutesLate = 0
	}
	record := types.Record{
		ID:          "r_" + uuid.NewString(),
		SessionID:   set.SessionID,
		PersonID:    set.PersonID,
		Status:      set.Status,
		MinutesLate: set.MinutesLate,
		Notes:       set.Notes,
		LeaveStatus: set.LeaveStatus,
	}
	_, err := p.db.ExecContext(ctx, p.q(`
		INSERT INTO {{records}} (id, session_id, person_id, status, minutes_late, notes, leave_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, person_id) DO UPDATE SET
			status = excluded.status,
			minutes_late = excluded.minutes_late,
			notes = excluded.notes,
			leave_status = excluded.leave_status
	`), record.ID, record.SessionID, record.PersonID,
		string(record.Status), record.MinutesLate, record.Notes, string(record.LeaveStatus))
	if err != nil {
		return types.Record{}, fmt.Errorf("set record status: %w", err)
	}
	// The stored id is the original one on conflict; read it back.
	err = p.db.QueryRowContext(ctx, p.q(`
		SELECT id FROM {{records}} WHERE session_id = ? AND person_id = ?
	`), set.SessionID, set.PersonID).Scan(&record.ID)
	if err != nil {
		return types.Record{}, fmt.Errorf("set record status: %w", err)
	}
	p.notify()
	return record, nil
}

func (p *sqlProvider) DeleteRecord(ctx context.Context, sessionID, personID string) error {
	res, err := p.db.ExecContext(ctx, p.q(`
		DELETE FROM {{records}} WHERE session_id = ? AND person_id = ?
	`), sessionID, personID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	p.notify()
	return nil
}

func (p *sqlProvider) ClearRecordsForSession(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx, p.q(`DELETE FROM {{records}} WHERE session_id = ?`), sessionID)
	if err != nil {
		return fmt.Errorf("clear session records: %w", err)
	}
	p.notify()
	return nil
}

// RecordsForRange fetches the sessions in [from, to] inclusive, optionally
// filtered by event type, plus the records of those sessions.
func (p *sqlProvider) RecordsForRange(ctx context.Context, from, to, eventTypeID string) (types.RangeData, error) {
	var data types.RangeData

	query := `
		SELECT id, date, dow, event_type_id, notes FROM {{sessions}}
		WHERE date >= ? AND date <= ?`
	args := []any{from, to}
	if eventTypeID != "" {
		query += ` AND event_type_id = ?`
		args = append(args, eventTypeID)
	}
	query += ` ORDER BY date, event_type_id`

	rows, err := p.db.QueryContext(ctx, p.q(query), args...)
	if err != nil {
		return types.RangeData{}, fmt.Errorf("range sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s types.Session
		if err := rows.Scan(&s.ID, &s.Date, &s.DOW, &s.EventTypeID, &s.Notes); err != nil {
			return types.RangeData{}, fmt.Errorf("scan session: %w", err)
		}
		data.Sessions = append(data.Sessions, s)
	}
	if err := rows.Err(); err != nil {
		return types.RangeData{}, err
	}

	recQuery := `
		SELECT r.id, r.session_id, r.person_id, r.status, r.minutes_late, r.notes, r.leave_status
		FROM {{records}} r
		JOIN {{sessions}} s ON s.id = r.session_id
		WHERE s.date >= ? AND s.date <= ?`
	if eventTypeID != "" {
		recQuery += ` AND s.event_type_id = ?`
	}
	recRows, err := p.db.QueryContext(ctx, p.q(recQuery), args...)
	if err != nil {
		return types.RangeData{}, fmt.Errorf("range records: %w", err)
	}
	defer recRows.Close()
	for recRows.Next() {
		r, err := scanRecord(recRows)
		if err != nil {
			return types.RangeData{}, fmt.Errorf("scan record: %w", err)
		}
		data.Records = append(data.Records, r)
	}
	return data, recRows.Err()
}

func (p *sqlProvider) FirstSessionDate(ctx context.Context, eventTypeID string) (string, error) {
	query := `SELECT date FROM {{sessions}}`
	var args []any
	if eventTypeID != "" {
		query += ` WHERE event_type_id = ?`
		args = append(args, eventTypeID)
	}
	query += ` ORDER BY date LIMIT 1`

	var date string
	err := p.db.QueryRowContext(ctx, p.q(query), args...).Scan(&date)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("first session date: %w", err)
	}
	return date, nil
}

// Bulk operations

func (p *sqlProvider) ExportAll(ctx context.Context) (types.Snapshot, error) {
	snap := types.Snapshot{
		People:     []types.Person{},
		EventTypes: []types.EventType{},
		Sessions:   []types.Session{},
		Records:    []types.Record{},
		Settings:   []types.Settings{},
	}
	people, err := p.ListPeople(ctx)
	if err != nil {
		return snap, err
	}
	snap.People = append(snap.People, people...)

	eventTypes, err := p.ListEventTypes(ctx)
	if err != nil {
		return snap, err
	}
	snap.EventTypes = append(snap.EventTypes, eventTypes...)

	rows, err := p.db.QueryContext(ctx, p.q(`SELECT id, date, dow, event_type_id, notes FROM {{sessions}} ORDER BY date`))
	if err != nil {
		return snap, fmt.Errorf("export sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s types.Session
		if err := rows.Scan(&s.ID, &s.Date, &s.DOW, &s.EventTypeID, &s.Notes); err != nil {
			return snap, fmt.Errorf("scan session: %w", err)
		}
		snap.Sessions = append(snap.Sessions, s)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	recRows, err := p.db.QueryContext(ctx, p.q(`SELECT `+recordColumns+` FROM {{records}}`))
	if err != nil {
		return snap, fmt.Errorf("export records: %w", err)
	}
	defer recRows.Close()
	for recRows.Next() {
		r, err := scanRecord(recRows)
		if err != nil {
			return snap, fmt.Errorf("scan record: %w", err)
		}
		snap.Records = append(snap.Records, r)
	}
	if err := recRows.Err(); err != nil {
		return snap, err
	}

	settings, err := p.GetSettings(ctx)
	if err != nil {
		return snap, err
	}
	snap.Settings = append(snap.Settings, settings)
	return snap, nil
}

// ImportAll atomically replaces each collection whose slice is non-nil.
func (p *sqlProvider) ImportAll(ctx context.Context, snap types.Snapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer tx.Rollback()

	if snap.People != nil {
		if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{people}}`)); err != nil {
			return fmt.Errorf("import people: %w", err)
		}
		for _, person := range snap.People {
			if person.ID == "" {
				person.ID = "p_" + uuid.NewString()
			}
			_, err := tx.ExecContext(ctx, p.q(`
				INSERT INTO {{people}} (id, display_name, active, tags, service_days)
				VALUES (?, ?, ?, ?, ?)
			`), person.ID, person.DisplayName, person.Active,
				encodeStrings(person.Tags), encodeStrings(person.ServiceDays))
			if err != nil {
				return fmt.Errorf("import people: %w", err)
			}
		}
	}
	if snap.EventTypes != nil {
		if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{event_types}}`)); err != nil {
			return fmt.Errorf("import event types: %w", err)
		}
		for _, et := range snap.EventTypes {
			_, err := tx.ExecContext(ctx, p.q(`
				INSERT INTO {{event_types}} (id, label, weight) VALUES (?, ?, ?)
			`), et.ID, et.Label, et.Weight)
			if err != nil {
				return fmt.Errorf("import event types: %w", err)
			}
		}
	}
	if snap.Sessions != nil {
		if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{sessions}}`)); err != nil {
			return fmt.Errorf("import sessions: %w", err)
		}
		for _, s := range snap.Sessions {
			_, err := tx.ExecContext(ctx, p.q(`
				INSERT INTO {{sessions}} (id, date, dow, event_type_id, notes)
				VALUES (?, ?, ?, ?, ?)
			`), s.ID, s.Date, s.DOW, s.EventTypeID, s.Notes)
			if err != nil {
				return fmt.Errorf("import sessions: %w", err)
			}
		}
	}
	if snap.Records != nil {
		if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{records}}`)); err != nil {
			return fmt.Errorf("import records: %w", err)
		}
		for _, r := range snap.Records {
			if r.ID == "" {
				r.ID = "r_" + uuid.NewString()
			}
			_, err := tx.ExecContext(ctx, p.q(`
				INSERT INTO {{records}} (id, session_id, person_id, status, minutes_late, notes, leave_status)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`), r.ID, r.SessionID, r.PersonID, string(r.Status), r.MinutesLate, r.Notes, string(r.LeaveStatus))
			if err != nil {
				return fmt.Errorf("import records: %w", err)
			}
		}
	}
	if snap.Settings != nil {
		if _, err := tx.ExecContext(ctx, p.q(`DELETE FROM {{settings}}`)); err != nil {
			return fmt.Errorf("import settings: %w", err)
		}
		for _, s := range snap.Settings {
			if s.ID == "" {
				s.ID = types.SettingsID
			}
			_, err := tx.ExecContext(ctx, p.q(`
				INSERT INTO {{settings}} (id, team_name, tardy_threshold_mins, low_threshold, mid_threshold, high_threshold)
				VALUES (?, ?, ?, ?, ?, ?)
			`), s.ID, s.TeamName, s.TardyThresholdMins,
				s.LegendThresholds.Low, s.LegendThresholds.Mid, s.LegendThresholds.High)
			if err != nil {
				return fmt.Errorf("import settings: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	p.notify()
	return nil
}

func (p *sqlProvider) ClearAll(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"records", "sessions", "people", "event_types", "settings"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+p.table(table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	p.notify()
	return nil
}

func (p *sqlProvider) HasData(ctx context.Context) (bool, error) {
	var people, records int
	if err := p.db.QueryRowContext(ctx, p.q(`SELECT COUNT(*) FROM {{people}}`)).Scan(&people); err != nil {
		return false, fmt.Errorf("count people: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, p.q(`SELECT COUNT(*) FROM {{records}}`)).Scan(&records); err != nil {
		return false, fmt.Errorf("count records: %w", err)
	}
	return people > 0 || records > 0, nil
}

func encodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func decodeStrings(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}
