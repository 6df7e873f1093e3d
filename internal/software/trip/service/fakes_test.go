package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"school-bus/internal/domain/bulk"
	"school-bus/internal/domain/geo"
	"school-bus/internal/domain/passenger"
	"school-bus/internal/domain/roster"
	"school-bus/internal/domain/route"
	"school-bus/internal/domain/trip"
	"school-bus/internal/domain/user"
	"school-bus/internal/general/logger"
	"school-bus/internal/general/replay"
	"school-bus/internal/ports"
)

const (
	schoolID     = "school-1"
	driverID     = "driver-1"
	supervisorID = "supervisor-1"
	adminID      = "admin-1"
)

// kmPerDegreeLat matches geo.HaversineKM's earth radius.
const kmPerDegreeLat = 6371.0 * 3.141592653589793 / 180

var schoolLocation = geo.Point{Latitude: 40.0, Longitude: -74.0}

func north(km float64) *geo.Point {
	return &geo.Point{Latitude: schoolLocation.Latitude + km/kmPerDegreeLat, Longitude: schoolLocation.Longitude}
}

var (
	driver     = ports.Actor{ID: driverID, SchoolID: schoolID, Role: user.RoleDriver}
	supervisor = ports.Actor{ID: supervisorID, SchoolID: schoolID, Role: user.RoleSupervisor}
	admin      = ports.Actor{ID: adminID, SchoolID: schoolID, Role: user.RoleAdmin}
)

// ----- in-memory store -----

type store struct {
	mu       sync.Mutex
	trips    map[string]trip.Trip
	students map[string]roster.Student
	records  map[string]passenger.Record
	profiles map[string]user.Profile
	ops      []bulk.Operation
	events   []trip.Event
}

func newStore() *store {
	return &store{
		trips:    map[string]trip.Trip{},
		students: map[string]roster.Student{},
		records:  map[string]passenger.Record{},
		profiles: map[string]user.Profile{},
	}
}

func (s *store) addStudent(id string, loc *geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[id] = roster.Student{ID: id, SchoolID: schoolID, Name: "Student " + id, Location: loc}
}

func (s *store) addProfile(id string, role user.Role, supervisorMode bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = user.Profile{ID: id, SchoolID: schoolID, Role: role, SupervisorModeEnabled: supervisorMode}
}

func (s *store) trip(id string) trip.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[id]
}

func (s *store) eventsOf(eventType trip.EventType) []trip.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trip.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *store) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func recordKey(tripID, studentID string) string { return tripID + "/" + studentID }

type fakeUoW struct{}

func (fakeUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeTrips struct{ s *store }

func (f fakeTrips) Create(_ context.Context, t *trip.Trip) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.trips[t.ID] = *t
	return nil
}

func (f fakeTrips) GetByID(_ context.Context, schoolID, id string) (*trip.Trip, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.trips[id]
	if !ok || t.SchoolID != schoolID {
		return nil, trip.ErrNotFound
	}
	return &t, nil
}

func (f fakeTrips) UpdateLifecycle(_ context.Context, t *trip.Trip) error {
	return f.put(t)
}

func (f fakeTrips) UpdatePosition(_ context.Context, tripID string, p geo.Point, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.trips[tripID]
	if !ok {
		return trip.ErrNotFound
	}
	t.LastPosition = &p
	t.LastPositionAt = &at
	f.s.trips[tripID] = t
	return nil
}

func (f fakeTrips) UpdateSupervision(_ context.Context, t *trip.Trip) error {
	return f.put(t)
}

func (f fakeTrips) ListActive(_ context.Context, schoolID string) ([]*trip.Trip, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*trip.Trip
	for _, t := range f.s.trips {
		if t.SchoolID == schoolID && t.Status == trip.StatusActive {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (f fakeTrips) put(t *trip.Trip) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.trips[t.ID]; !ok {
		return trip.ErrNotFound
	}
	f.s.trips[t.ID] = *t
	return nil
}

type fakeRoster struct{ s *store }

func (f fakeRoster) ListByIDs(_ context.Context, schoolID string, ids []string) ([]roster.Student, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []roster.Student{}
	for _, id := range ids {
		if st, ok := f.s.students[id]; ok && st.SchoolID == schoolID {
			out = append(out, st)
		}
	}
	return out, nil
}

type fakePassengers struct{ s *store }

func (f fakePassengers) Get(_ context.Context, tripID, studentID string) (*passenger.Record, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	rec, ok := f.s.records[recordKey(tripID, studentID)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f fakePassengers) ListForTrip(_ context.Context, tripID string) ([]passenger.Record, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []passenger.Record
	for _, rec := range f.s.records {
		if rec.TripID == tripID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f fakePassengers) Put(_ context.Context, rec *passenger.Record, expectedVersion int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	key := recordKey(rec.TripID, rec.StudentID)
	if f.s.records[key].Version != expectedVersion {
		return passenger.ErrVersionConflict
	}
	f.s.records[key] = *rec
	return nil
}

// interleavedPassengers runs beforePut once, between the caller's read and its write,
// so a second writer can commit in that gap.
type interleavedPassengers struct {
	fakePassengers
	beforePut func()
}

func (f *interleavedPassengers) Put(ctx context.Context, rec *passenger.Record, expectedVersion int64) error {
	if hook := f.beforePut; hook != nil {
		f.beforePut = nil
		hook()
	}
	return f.fakePassengers.Put(ctx, rec, expectedVersion)
}

type fakeProfiles struct{ s *store }

func (f fakeProfiles) GetByID(_ context.Context, schoolID, id string) (*user.Profile, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.profiles[id]
	if !ok || p.SchoolID != schoolID {
		return nil, user.ErrProfileNotFound
	}
	return &p, nil
}

func (f fakeProfiles) SetSupervisorMode(_ context.Context, p *user.Profile) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.profiles[p.ID] = *p
	return nil
}

type fakeBulkOps struct{ s *store }

func (f fakeBulkOps) Insert(_ context.Context, op *bulk.Operation) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.ops = append(f.s.ops, *op)
	return nil
}

func (f fakeBulkOps) Update(_ context.Context, op *bulk.Operation) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for i := range f.s.ops {
		if f.s.ops[i].ID == op.ID {
			f.s.ops[i] = *op
			return nil
		}
	}
	return fmt.Errorf("operation %s not found", op.ID)
}

func (f fakeBulkOps) ListBatch(_ context.Context, _ string, batchID string) ([]bulk.Operation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []bulk.Operation{}
	for _, op := range f.s.ops {
		if op.BatchID == batchID {
			out = append(out, op)
		}
	}
	return out, nil
}

// lossyBulkOps refuses to insert rows for one student.
type lossyBulkOps struct {
	fakeBulkOps
	studentID string
}

func (f lossyBulkOps) Insert(ctx context.Context, op *bulk.Operation) error {
	if op.StudentID == f.studentID {
		return errors.New("connection reset")
	}
	return f.fakeBulkOps.Insert(ctx, op)
}

type fakeEvents struct{ s *store }

func (f fakeEvents) Append(_ context.Context, e *trip.Event) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.events = append(f.s.events, *e)
	return nil
}

// ----- gateways -----

type published struct {
	exchange   string
	routingKey string
	body       []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.routingKey)
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []any
}

func (n *recordingNotifier) BroadcastToTrip(_ string, msg any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

// sent returns the broadcast messages of type T in order.
func sent[T any](n *recordingNotifier) []T {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []T
	for _, m := range n.msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type stubDirections struct {
	result *route.Directions
	err    error
	calls  int
}

func (d *stubDirections) Directions(_ context.Context, _ route.DirectionsRequest) (*route.Directions, error) {
	d.calls++
	return d.result, d.err
}

// ----- fixture -----

type fixture struct {
	svc       *tripService
	store     *store
	publisher *recordingPublisher
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := newStore()
	s.addProfile(driverID, user.RoleDriver, false)
	s.addProfile(supervisorID, user.RoleSupervisor, false)

	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}
	svc := NewTripService(Deps{
		Logger:     logger.NewWithWriter("trip-service-test", io.Discard),
		UoW:        fakeUoW{},
		Trips:      fakeTrips{s},
		Roster:     fakeRoster{s},
		Passengers: fakePassengers{s},
		Profiles:   fakeProfiles{s},
		BulkOps:    fakeBulkOps{s},
		Events:     fakeEvents{s},
		Publisher:  pub,
		Notifier:   notifier,
		Replay:     replay.NewMemoryGuard(2*time.Second, 128),
	}).(*tripService)

	var seq int
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}

	return &fixture{svc: svc, store: s, publisher: pub, notifier: notifier}
}

// seedTrip stores a trip over students A (1 km), B (3 km) and C (2 km) north of the school.
func (f *fixture) seedTrip(t *testing.T, mode trip.Mode) string {
	t.Helper()

	f.store.addStudent("A", north(1))
	f.store.addStudent("B", north(3))
	f.store.addStudent("C", north(2))

	res, err := f.svc.CreateTrip(context.Background(), ports.CreateTripInput{
		Actor:        admin,
		Mode:         mode,
		DriverID:     driverID,
		SupervisorID: supervisorID,
		School:       schoolLocation,
		Roster:       []string{"A", "B", "C"},
	})
	if err != nil {
		t.Fatalf("seed trip: %v", err)
	}
	return res.TripID
}

func (f *fixture) startTrip(t *testing.T, tripID string) {
	t.Helper()
	if _, err := f.svc.StartTrip(context.Background(), ports.StartTripInput{
		Actor:          driver,
		TripID:         tripID,
		DriverPosition: &schoolLocation,
	}); err != nil {
		t.Fatalf("start trip: %v", err)
	}
}
