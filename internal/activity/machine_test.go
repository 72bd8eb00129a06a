package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakePlayer struct {
	active []bool // consumed one per call, last value repeats
	err    error
	block  bool
	calls  int
}

func (p *fakePlayer) IsActive(ctx context.Context) (bool, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if p.err != nil {
		return false, p.err
	}
	v := p.active[0]
	if len(p.active) > 1 {
		p.active = p.active[1:]
	}
	return v, nil
}

func (p *fakePlayer) Label() string { return "Living Room TV" }

type fakeLights struct {
	on       bool
	isOnErr  error
	setOnErr error
	probes   int
	setCalls []bool
}

func (l *fakeLights) IsOn(ctx context.Context) (bool, error) {
	l.probes++
	if l.isOnErr != nil {
		return false, l.isOnErr
	}
	return l.on, nil
}

func (l *fakeLights) SetOn(ctx context.Context, on bool) error {
	if l.setOnErr != nil {
		return l.setOnErr
	}
	l.setCalls = append(l.setCalls, on)
	l.on = on
	return nil
}

func newTestMachine(p *fakePlayer, l *fakeLights) *Machine {
	m := NewMachine(p, l, time.Second)
	n := 0
	m.newSession = func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
	return m
}

func tickN(t *testing.T, m *Machine, n int) []Report {
	t.Helper()
	reports := make([]Report, 0, n)
	for i := 0; i < n; i++ {
		r, err := m.Tick(context.Background())
		if err != nil {
			t.Fatalf("tick %d: unexpected error %v", i+1, err)
		}
		reports = append(reports, r)
	}
	return reports
}

func equalCalls(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMachine_Scenario(t *testing.T) {
	player := &fakePlayer{active: []bool{false, true, true, false}}
	lights := &fakeLights{on: true}
	m := newTestMachine(player, lights)

	reports := tickN(t, m, 4)

	want := []Outcome{OutcomeNone, OutcomeTurnedOff, OutcomeNone, OutcomeRestoring}
	for i, r := range reports {
		if r.Decision.Outcome != want[i] {
			t.Errorf("tick %d outcome = %s, want %s", i+1, r.Decision.Outcome, want[i])
		}
	}
	if !equalCalls(lights.setCalls, []bool{false, true}) {
		t.Errorf("SetOn calls = %v, want [false true]", lights.setCalls)
	}
	if lights.probes != 1 {
		t.Errorf("IsOn probes = %d, want 1", lights.probes)
	}
	if m.State() != (State{}) {
		t.Errorf("final state = %+v, want idle", m.State())
	}
}

func TestMachine_IdempotentWhileActive(t *testing.T) {
	player := &fakePlayer{active: []bool{true}}
	lights := &fakeLights{on: true}
	m := newTestMachine(player, lights)

	reports := tickN(t, m, 10)

	if len(lights.setCalls) != 1 {
		t.Errorf("SetOn called %d times, want 1", len(lights.setCalls))
	}
	if lights.probes != 1 {
		t.Errorf("IsOn probed %d times, want 1", lights.probes)
	}
	for i, r := range reports[1:] {
		if r.Decision.Changed() {
			t.Errorf("tick %d should be a no-op, got %s", i+2, r.Decision.Outcome)
		}
		if r.Message() != "" {
			t.Errorf("tick %d emitted %q on a no-op", i+2, r.Message())
		}
		if r.State != (State{InUse: true, LightsWereAlreadyOff: false}) {
			t.Errorf("tick %d state = %+v", i+2, r.State)
		}
		if r.Session != "session-1" {
			t.Errorf("tick %d session = %q, want session-1", i+2, r.Session)
		}
	}
}

func TestMachine_LeavesLightsOffWhenAlreadyOff(t *testing.T) {
	player := &fakePlayer{active: []bool{true, false}}
	lights := &fakeLights{on: false}
	m := newTestMachine(player, lights)

	reports := tickN(t, m, 2)

	if len(lights.setCalls) != 0 {
		t.Errorf("SetOn calls = %v, want none", lights.setCalls)
	}
	if reports[0].Decision.Outcome != OutcomeAlreadyOff {
		t.Errorf("first outcome = %s, want already off", reports[0].Decision.Outcome)
	}
	if reports[1].Decision.Outcome != OutcomeLeavingOff {
		t.Errorf("final outcome = %s, want leaving off", reports[1].Decision.Outcome)
	}
	if reports[1].Session != "session-1" {
		t.Errorf("closing report session = %q, want session-1", reports[1].Session)
	}
	if m.Session() != "" {
		t.Errorf("session after idle = %q, want empty", m.Session())
	}
}

func TestMachine_LightProbeErrorKeepsIdle(t *testing.T) {
	player := &fakePlayer{active: []bool{true}}
	lights := &fakeLights{on: true, isOnErr: errors.New("bridge unreachable")}
	m := newTestMachine(player, lights)

	_, err := m.Tick(context.Background())

	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("Tick() error = %v, want *ProbeError", err)
	}
	if probeErr.Source != SourceLighting || probeErr.Op != "is_on" {
		t.Errorf("ProbeError = %+v", probeErr)
	}
	if m.State() != (State{}) {
		t.Errorf("state = %+v, want idle", m.State())
	}
	if m.Session() != "" {
		t.Errorf("session = %q, want empty", m.Session())
	}

	// Bridge recovers: the next tick starts the session normally
	lights.isOnErr = nil
	r, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() after recovery error = %v", err)
	}
	if r.Decision.Outcome != OutcomeTurnedOff {
		t.Errorf("outcome after recovery = %s, want turned off", r.Decision.Outcome)
	}
}

func TestMachine_PlayerErrorKeepsState(t *testing.T) {
	player := &fakePlayer{active: []bool{true}}
	lights := &fakeLights{on: true}
	m := newTestMachine(player, lights)
	tickN(t, m, 1)

	player.err = errors.New("connection reset")
	_, err := m.Tick(context.Background())

	var probeErr *ProbeError
	if !errors.As(err, &probeErr) || probeErr.Source != SourceMediaPlayer {
		t.Fatalf("Tick() error = %v, want media player ProbeError", err)
	}
	if m.State() != (State{InUse: true}) {
		t.Errorf("state = %+v, want suppressing", m.State())
	}
	if len(lights.setCalls) != 1 {
		t.Errorf("SetOn calls = %v, want only the initial turn off", lights.setCalls)
	}
}

func TestMachine_FailedTurnOffRetries(t *testing.T) {
	player := &fakePlayer{active: []bool{true}}
	lights := &fakeLights{on: true, setOnErr: errors.New("rejected")}
	m := newTestMachine(player, lights)

	if _, err := m.Tick(context.Background()); err == nil {
		t.Fatal("expected error from failed turn off")
	}
	if m.State().InUse {
		t.Error("state must stay idle when the turn off failed")
	}

	lights.setOnErr = nil
	tickN(t, m, 1)
	if !equalCalls(lights.setCalls, []bool{false}) {
		t.Errorf("SetOn calls = %v, want [false]", lights.setCalls)
	}
	if lights.probes != 2 {
		t.Errorf("IsOn probes = %d, want 2 (one per activity start attempt)", lights.probes)
	}
}

func TestMachine_FailedRestoreRetries(t *testing.T) {
	player := &fakePlayer{active: []bool{true, false}}
	lights := &fakeLights{on: true}
	m := newTestMachine(player, lights)
	tickN(t, m, 1)

	lights.setOnErr = errors.New("rejected")
	_, err := m.Tick(context.Background())
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) || probeErr.Op != "set_on" {
		t.Fatalf("Tick() error = %v, want set_on ProbeError", err)
	}
	if m.State() != (State{InUse: true, LightsWereAlreadyOff: false}) {
		t.Errorf("state = %+v, want suppressing with lights to restore", m.State())
	}

	lights.setOnErr = nil
	reports := tickN(t, m, 1)
	if reports[0].Decision.Outcome != OutcomeRestoring {
		t.Errorf("outcome = %s, want restoring", reports[0].Decision.Outcome)
	}
	if !equalCalls(lights.setCalls, []bool{false, true}) {
		t.Errorf("SetOn calls = %v, want [false true]", lights.setCalls)
	}
}

func TestMachine_ProbeTimeout(t *testing.T) {
	player := &fakePlayer{block: true}
	lights := &fakeLights{on: true}
	m := NewMachine(player, lights, 10*time.Millisecond)

	_, err := m.Tick(context.Background())

	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("Tick() error = %v, want *ProbeError", err)
	}
	if !probeErr.Timeout() {
		t.Errorf("Timeout() = false for %v", probeErr)
	}
	if m.State() != (State{}) {
		t.Errorf("state = %+v, want idle", m.State())
	}
}

func TestMachine_NewSessionPerActivity(t *testing.T) {
	player := &fakePlayer{active: []bool{true, false, true}}
	lights := &fakeLights{on: true}
	m := newTestMachine(player, lights)

	reports := tickN(t, m, 3)
	if reports[0].Session != "session-1" || reports[2].Session != "session-2" {
		t.Errorf("sessions = %q, %q, want session-1, session-2", reports[0].Session, reports[2].Session)
	}
}
