package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/api/websocket"
	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"github.com/KevinKickass/OpenHelm/internal/config"
	"github.com/KevinKickass/OpenHelm/internal/interfaces"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"github.com/KevinKickass/OpenHelm/internal/storage"
	"github.com/KevinKickass/OpenHelm/internal/telemetry"
	"github.com/KevinKickass/OpenHelm/internal/types"
	"go.uber.org/zap"
)

type fakePilot struct {
	mu        sync.Mutex
	course    autopilot.Course
	err       error
	setCalls  []autopilot.Course
	deltas    []float64
	disengage int
	profile   pid.Profile
	profiles  int
}

func (p *fakePilot) Status() autopilot.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := autopilot.StateDisengaged
	if p.course.IsSet() {
		state = autopilot.StateEngaged
	}
	return autopilot.Status{State: state, Course: p.course, Profile: p.profile.String()}
}

func (p *fakePilot) SetCourse(ctx context.Context, course autopilot.Course) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCalls = append(p.setCalls, course)
	if p.err != nil {
		return p.err
	}
	p.course = course
	return nil
}

func (p *fakePilot) AdjustCourse(ctx context.Context, delta float64) (autopilot.Course, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, delta)
	if !p.course.IsSet() {
		return p.course, autopilot.ErrNotEngaged
	}
	h, _ := p.course.Heading()
	p.course = autopilot.CourseTo(h + delta)
	return p.course, nil
}

func (p *fakePilot) EngageHere(ctx context.Context) (autopilot.Course, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return autopilot.NoCourse, p.err
	}
	p.course = autopilot.CourseTo(123)
	return p.course, nil
}

func (p *fakePilot) Disengage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disengage++
	p.course = autopilot.NoCourse
	return nil
}

func (p *fakePilot) SetProfile(profile pid.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles++
	p.profile = profile
	return nil
}

func (p *fakePilot) IsEngaged() bool  { return p.Status().State == autopilot.StateEngaged }
func (p *fakePilot) IsOnCourse() bool { return true }

// fakeRudder keeps calibration in memory and enforces port < starboard.
type fakeRudder struct {
	mu       sync.Mutex
	cal      calibration.Calibration
	position int
	hasPos   bool
	echoErr  error
}

func (r *fakeRudder) Snapshot() rudder.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rudder.Snapshot{
		PortLimitRaw:      r.cal.PortLimit,
		StarboardLimitRaw: r.cal.StarboardLimit,
		PositionRaw:       r.position,
	}
}

func (r *fakeRudder) setLimit(raw int, port bool) error {
	if raw < 0 || raw > 1023 {
		return fmt.Errorf("limit %d: %w", raw, rudder.ErrOutOfRange)
	}
	next := r.cal
	if port {
		next.PortLimit = raw
	} else {
		next.StarboardLimit = raw
	}
	if next.PortLimit >= next.StarboardLimit {
		return rudder.ErrInvalidLimits
	}
	r.cal = next
	return nil
}

func (r *fakeRudder) SetPortLimit(raw int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setLimit(raw, true)
}

func (r *fakeRudder) SetStarboardLimit(raw int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setLimit(raw, false)
}

func (r *fakeRudder) CapturePortLimit() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPos {
		return 0, rudder.ErrNoPosition
	}
	return r.position, r.setLimit(r.position, true)
}

func (r *fakeRudder) CaptureStarboardLimit() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPos {
		return 0, rudder.ErrNoPosition
	}
	return r.position, r.setLimit(r.position, false)
}

func (r *fakeRudder) SetReportingInterval(ms int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ms <= 0 {
		return rudder.ErrOutOfRange
	}
	r.cal.ReportingIntervalMs = ms
	return nil
}

func (r *fakeRudder) SetEcho(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.echoErr != nil {
		return r.echoErr
	}
	r.cal.Echo = on
	return nil
}

func (r *fakeRudder) RequestStatus() error { return nil }

func (r *fakeRudder) Current() calibration.Calibration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cal
}

type fakeTelemetry struct{}

func (fakeTelemetry) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{Clutch: "engaged", Heading: 42}
}

type fakeJournal struct {
	entries []storage.JournalEntry
	limit   int
}

func (j *fakeJournal) RecentJournalEntries(ctx context.Context, limit int) ([]storage.JournalEntry, error) {
	j.limit = limit
	return j.entries, nil
}

type fakeLifecycle struct {
	cfg     *config.Config
	pilot   *fakePilot
	rudder  *fakeRudder
	feed    *sensor.Feed
	journal *fakeJournal
}

func (l *fakeLifecycle) Config() *config.Config                    { return l.cfg }
func (l *fakeLifecycle) Autopilot() interfaces.Autopilot           { return l.pilot }
func (l *fakeLifecycle) Rudder() interfaces.Rudder                 { return l.rudder }
func (l *fakeLifecycle) Calibration() interfaces.CalibrationReader { return l.rudder }
func (l *fakeLifecycle) Sensor() interfaces.SensorFeed             { return l.feed }
func (l *fakeLifecycle) Telemetry() interfaces.TelemetrySource     { return fakeTelemetry{} }

func (l *fakeLifecycle) Journal() interfaces.JournalReader {
	if l.journal == nil {
		return nil
	}
	return l.journal
}

func (l *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING"}
}

func (l *fakeLifecycle) Shutdown(ctx context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *fakeLifecycle) {
	t.Helper()

	lm := &fakeLifecycle{
		cfg:   &config.Config{Server: config.ServerConfig{HTTPPort: 0, ShutdownTimeout: time.Second}},
		pilot: &fakePilot{},
		rudder: &fakeRudder{
			cal: calibration.Calibration{PortLimit: 100, StarboardLimit: 900, ReportingIntervalMs: 250, Echo: true, GainProfile: "calm"},
		},
		feed: sensor.NewFeed(time.Second),
	}
	return NewServer(lm.cfg, lm, zap.NewNop(), websocket.NewHub(zap.NewNop())), lm
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	resp := decode[types.ErrorResponse](t, rec)
	if resp.Error.Code != code {
		t.Fatalf("code = %q, want %q", resp.Error.Code, code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]any](t, rec)["status"]; got != "ok" {
		t.Fatalf("status field = %v", got)
	}
}

func TestSetCourse_EngagesAndDisengages(t *testing.T) {
	s, lm := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/v1/autopilot/course", `{"course": 370}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	status := decode[map[string]any](t, rec)
	if status["state"] != string(autopilot.StateEngaged) || status["course"] != 10.0 {
		t.Fatalf("unexpected status %v", status)
	}

	rec = do(t, s, http.MethodPut, "/api/v1/autopilot/course", `{"course": null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if status := decode[map[string]any](t, rec); status["course"] != nil {
		t.Fatalf("course after null = %v", status["course"])
	}

	if len(lm.pilot.setCalls) != 2 || lm.pilot.setCalls[1].IsSet() {
		t.Fatalf("SetCourse calls = %v", lm.pilot.setCalls)
	}
}

func TestSetCourse_RejectsBadBodies(t *testing.T) {
	s, lm := newTestServer(t)

	for _, body := range []string{`{}`, `{"course": "north"}`, `not json`} {
		rec := do(t, s, http.MethodPut, "/api/v1/autopilot/course", body)
		expectError(t, rec, http.StatusBadRequest, "AUTOPILOT_400")
	}
	if len(lm.pilot.setCalls) != 0 {
		t.Fatalf("SetCourse called for bad bodies: %v", lm.pilot.setCalls)
	}
}

func TestSetCourse_MapsControllerErrors(t *testing.T) {
	s, lm := newTestServer(t)

	lm.pilot.err = autopilot.ErrNotRunning
	expectError(t, do(t, s, http.MethodPut, "/api/v1/autopilot/course", `{"course": 90}`),
		http.StatusConflict, "AUTOPILOT_409")

	lm.pilot.err = fmt.Errorf("engage clutch: %w", rudder.ErrConfirmationTimeout)
	expectError(t, do(t, s, http.MethodPost, "/api/v1/autopilot/engage", ""),
		http.StatusServiceUnavailable, "AUTOPILOT_503")
}

func TestAdjustCourse(t *testing.T) {
	s, lm := newTestServer(t)

	expectError(t, do(t, s, http.MethodPost, "/api/v1/autopilot/adjust", `{"delta": 10}`),
		http.StatusConflict, "AUTOPILOT_409")
	expectError(t, do(t, s, http.MethodPost, "/api/v1/autopilot/adjust", `{}`),
		http.StatusBadRequest, "AUTOPILOT_400")

	lm.pilot.course = autopilot.CourseTo(355)
	rec := do(t, s, http.MethodPost, "/api/v1/autopilot/adjust", `{"delta": 10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["course"]; got != 5.0 {
		t.Fatalf("course = %v, want 5", got)
	}
}

func TestEngageHereAndDisengage(t *testing.T) {
	s, lm := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/autopilot/engage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["course"]; got != 123.0 {
		t.Fatalf("course = %v", got)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/autopilot/disengage", "")
	if rec.Code != http.StatusOK || lm.pilot.disengage != 1 {
		t.Fatalf("disengage status = %d calls = %d", rec.Code, lm.pilot.disengage)
	}
}

func TestSetProfile(t *testing.T) {
	s, lm := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/v1/autopilot/profile", `{"profile": "Rough"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]any](t, rec)["gain_profile"]; got != "rough" {
		t.Fatalf("gain_profile = %v, want rough", got)
	}

	for _, body := range []string{`{}`, `{"profile": "storm"}`, `not json`} {
		rec := do(t, s, http.MethodPut, "/api/v1/autopilot/profile", body)
		expectError(t, rec, http.StatusBadRequest, "AUTOPILOT_400")
	}
	if lm.pilot.profiles != 1 {
		t.Fatalf("SetProfile calls = %d, want 1", lm.pilot.profiles)
	}
}

func TestPortLimit_CaptureAndExplicit(t *testing.T) {
	s, lm := newTestServer(t)

	expectError(t, do(t, s, http.MethodPost, "/api/v1/rudder/calibration/port", ""),
		http.StatusConflict, "RUDDER_409")

	lm.rudder.position, lm.rudder.hasPos = 300, true
	rec := do(t, s, http.MethodPost, "/api/v1/rudder/calibration/port", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	if body["raw"] != 300.0 || body["captured"] != true {
		t.Fatalf("unexpected capture response %v", body)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/rudder/calibration/starboard", `{"raw": 800}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cal := lm.rudder.Current(); cal.PortLimit != 300 || cal.StarboardLimit != 800 {
		t.Fatalf("calibration = %+v", cal)
	}
}

func TestPortLimit_Rejections(t *testing.T) {
	s, lm := newTestServer(t)

	expectError(t, do(t, s, http.MethodPost, "/api/v1/rudder/calibration/port", `{"raw": 950}`),
		http.StatusBadRequest, "RUDDER_400")
	expectError(t, do(t, s, http.MethodPost, "/api/v1/rudder/calibration/port", `{"raw": 5000}`),
		http.StatusBadRequest, "RUDDER_400")

	if cal := lm.rudder.Current(); cal.PortLimit != 100 {
		t.Fatalf("port limit changed to %d", cal.PortLimit)
	}
}

func TestReportingIntervalAndEcho(t *testing.T) {
	s, lm := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/v1/rudder/reporting-interval", `{"interval_ms": 500}`)
	if rec.Code != http.StatusOK || lm.rudder.Current().ReportingIntervalMs != 500 {
		t.Fatalf("status = %d calibration %+v", rec.Code, lm.rudder.Current())
	}
	expectError(t, do(t, s, http.MethodPut, "/api/v1/rudder/reporting-interval", `{"interval_ms": -5}`),
		http.StatusBadRequest, "RUDDER_400")

	rec = do(t, s, http.MethodPut, "/api/v1/rudder/echo", `{"echo": false}`)
	if rec.Code != http.StatusOK || lm.rudder.Current().Echo {
		t.Fatalf("status = %d calibration %+v", rec.Code, lm.rudder.Current())
	}

	lm.rudder.echoErr = rudder.ErrClosed
	expectError(t, do(t, s, http.MethodPut, "/api/v1/rudder/echo", `{"echo": true}`),
		http.StatusServiceUnavailable, "RUDDER_503")
}

func TestSensor(t *testing.T) {
	s, _ := newTestServer(t)

	expectError(t, do(t, s, http.MethodGet, "/api/v1/sensor", ""), http.StatusNotFound, "SENSOR_404")
	expectError(t, do(t, s, http.MethodPut, "/api/v1/sensor", `{"heel_deg": 3}`),
		http.StatusBadRequest, "SENSOR_400")

	rec := do(t, s, http.MethodPut, "/api/v1/sensor", `{"heading_deg": -90, "turn_rate_dps": 1.5, "heel_deg": 3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	reading := decode[sensor.Reading](t, rec)
	if reading.HeadingDeg != 270 || reading.TurnRateDps != 1.5 {
		t.Fatalf("reading = %+v", reading)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/sensor", ""); rec.Code != http.StatusOK {
		t.Fatalf("GET sensor status = %d", rec.Code)
	}
}

func TestTelemetry(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/telemetry", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := decode[map[string]any](t, rec)
	if snap["clutch"] != "engaged" || snap["heading"] != 42.0 {
		t.Fatalf("snapshot = %v", snap)
	}
}

func TestJournal(t *testing.T) {
	s, lm := newTestServer(t)

	expectError(t, do(t, s, http.MethodGet, "/api/v1/journal", ""), http.StatusServiceUnavailable, "JOURNAL_503")

	lm.journal = &fakeJournal{entries: []storage.JournalEntry{{Kind: storage.KindEngaged, Heading: 90}}}

	expectError(t, do(t, s, http.MethodGet, "/api/v1/journal?limit=abc", ""), http.StatusBadRequest, "JOURNAL_400")

	rec := do(t, s, http.MethodGet, "/api/v1/journal?limit=10000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if lm.journal.limit != maxJournalLimit {
		t.Fatalf("limit = %d, want %d", lm.journal.limit, maxJournalLimit)
	}
	if got := decode[map[string]any](t, rec)["count"]; got != 1.0 {
		t.Fatalf("count = %v", got)
	}
}
