package store

import (
	"context"
	"errors"
	"sync"

	"github.com/rollbook/rollbook/internal/types"
)

// Store modes, selected by configuration. Callers must never branch on the
// mode for anything but display.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// PersonOptions carries the optional fields when adding a roster member.
type PersonOptions struct {
	Active      bool
	Tags        []string
	ServiceDays []string
}

// SetRecord is one status upsert for a (session, person) pair. MinutesLate is
// only meaningful when Status is tardy and is cleared otherwise.
type SetRecord struct {
	SessionID   string
	PersonID    string
	Status      types.Status
	MinutesLate int
	Notes       string
	LeaveStatus types.Status
}

// Provider is the persistence collaborator contract shared by the local and
// cloud backends. Writes notify subscribers so callers can refresh or drop
// caches; reads always serve the backend's current view.
type Provider interface {
	Mode() string
	Init(ctx context.Context) error
	Close() error

	GetSettings(ctx context.Context) (types.Settings, error)
	SaveSettings(ctx context.Context, s types.Settings) (types.Settings, error)

	ListPeople(ctx context.Context) ([]types.Person, error)
	AddPerson(ctx context.Context, displayName string, opts PersonOptions) (types.Person, error)
	SavePerson(ctx context.Context, p types.Person) error
	DeletePerson(ctx context.Context, id string) error

	ListEventTypes(ctx context.Context) ([]types.EventType, error)
	SaveEventType(ctx context.Context, et types.EventType) error
	DeleteEventType(ctx context.Context, id string) error

	UpsertSession(ctx context.Context, date, eventTypeID, notes string) (types.Session, error)
	RecordsForSession(ctx context.Context, sessionID string) ([]types.Record, error)
	SetRecordStatus(ctx context.Context, set SetRecord) (types.Record, error)
	DeleteRecord(ctx context.Context, sessionID, personID string) error
	ClearRecordsForSession(ctx context.Context, sessionID string) error

	RecordsForRange(ctx context.Context, from, to, eventTypeID string) (types.RangeData, error)
	FirstSessionDate(ctx context.Context, eventTypeID string) (string, error)

	ExportAll(ctx context.Context) (types.Snapshot, error)
	// ImportAll replaces each collection whose slice is non-nil; nil slices
	// leave the stored collection untouched.
	ImportAll(ctx context.Context, snap types.Snapshot) error
	ClearAll(ctx context.Context) error
	HasData(ctx context.Context) (bool, error)

	Subscribe(fn func()) (unsubscribe func())
}

// notifier fans out write notifications to subscribers. Both backends embed
// it; the HTTP layer uses it to invalidate the analytics cache.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

func (n *notifier) Subscribe(fn func()) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
