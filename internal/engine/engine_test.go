package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeDirectory serves identities, memberships and sessions from memory.
type fakeDirectory struct {
	identities map[string]Identity // by NIM
	members    map[string]bool     // "identityID/classID"
	sessions   []Session
}

func (d *fakeDirectory) IdentityByNIM(_ context.Context, nim string) (*Identity, error) {
	if ident, ok := d.identities[nim]; ok {
		cp := ident
		return &cp, nil
	}
	return nil, nil
}

func (d *fakeDirectory) IsMember(_ context.Context, identityID, classID int64) (bool, error) {
	return d.members[fmt.Sprintf("%d/%d", identityID, classID)], nil
}

func (d *fakeDirectory) ActiveSessions(_ context.Context, classID int64, date string) ([]Session, error) {
	var out []Session
	for _, s := range d.sessions {
		if s.ClassID == classID && s.Date == date && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeRecords claims (student, session) pairs with a mutex-guarded
// compare-and-swap, mimicking the storage unique constraint.
type fakeRecords struct {
	mu     sync.Mutex
	nextID int64
	byPair map[[2]int64]Record
	// existsOverride, when set, replaces the fast-path answer so tests can
	// reproduce the pre-check/insert race.
	existsOverride func() (bool, error)
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byPair: make(map[[2]int64]Record)}
}

func (r *fakeRecords) Exists(_ context.Context, studentID, sessionID int64) (bool, error) {
	if r.existsOverride != nil {
		return r.existsOverride()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byPair[[2]int64{studentID, sessionID}]
	return ok, nil
}

func (r *fakeRecords) Insert(_ context.Context, rec Record) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{rec.StudentID, rec.SessionID}
	if _, ok := r.byPair[key]; ok {
		return Record{}, false, nil
	}
	r.nextID++
	rec.ID = r.nextID
	r.byPair[key] = rec
	return rec, true, nil
}

type fakeMatcher struct {
	match  bool
	score  float64
	err    error
	calls  int
	mu     sync.Mutex
	probes [][]byte
}

func (m *fakeMatcher) Match(_ context.Context, probe, _ []byte) (bool, float64, error) {
	m.mu.Lock()
	m.calls++
	m.probes = append(m.probes, probe)
	m.mu.Unlock()
	if m.err != nil {
		return false, 0, m.err
	}
	return m.match, m.score, nil
}

type fakeEvidence struct {
	fail  bool
	mu    sync.Mutex
	saved []string
}

func (e *fakeEvidence) Save(_ context.Context, _ []byte) (string, error) {
	if e.fail {
		return "", errors.New("disk full")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	path := fmt.Sprintf("evidence/%d.jpg", len(e.saved)+1)
	e.saved = append(e.saved, path)
	return path, nil
}

// testClock is the fixed submission instant used across the engine tests:
// 09:30 inside the default 09:00-10:00 window on 2024-01-01.
func testClock() time.Time {
	return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
}

func defaultDirectory() *fakeDirectory {
	return &fakeDirectory{
		identities: map[string]Identity{
			"2201001": {ID: 1, Name: "Siti", NIM: "2201001", LegacyClassID: 10, Template: []byte("ref"), Enrolled: true},
			"2201002": {ID: 2, Name: "Budi", NIM: "2201002", LegacyClassID: 10},
		},
		members: map[string]bool{
			"1/10": true,
			"2/10": true,
		},
		sessions: []Session{
			{ID: 100, ClassID: 10, Date: "2024-01-01", Start: "09:00", End: "10:00", Method: MethodFace, Active: true},
		},
	}
}
