package matchclock

import (
	"errors"
	"testing"
	"time"
)

var kickoff = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func mustApply(t *testing.T, s State, a Action, now time.Time) State {
	t.Helper()
	next, applied, err := s.Apply(a, now)
	if err != nil {
		t.Fatalf("apply %s: %v", a, err)
	}
	if !applied {
		t.Fatalf("apply %s: not applied", a)
	}
	return next
}

func TestStartThenImmediatelyEndFirstHalf(t *testing.T) {
	s := mustApply(t, Initial(), ActionStartFirstHalf, kickoff)
	if s.Status != StatusLive || s.Phase != PhaseFirstHalf || !s.Running() {
		t.Fatalf("unexpected state after start: %+v", s)
	}

	s = mustApply(t, s, ActionEndFirstHalf, kickoff)
	if s.ElapsedSeconds < 0 {
		t.Fatalf("negative elapsed: %d", s.ElapsedSeconds)
	}
	if s.ClockStartedAt != nil {
		t.Fatalf("clock should be frozen at half time")
	}
	assertEq(t, s.Phase, PhaseHalfTime)
}

func TestSecondHalfCarriesElapsed(t *testing.T) {
	s := mustApply(t, Initial(), ActionStartFirstHalf, kickoff)
	s = mustApply(t, s, ActionEndFirstHalf, kickoff.Add(45*time.Minute))
	assertEq(t, s.ElapsedSeconds, int64(2700))

	resume := kickoff.Add(62 * time.Minute)
	s = mustApply(t, s, ActionStartSecondHalf, resume)
	assertEq(t, s.ElapsedSeconds, int64(2700))
	assertEq(t, s.Phase, PhaseSecondHalf)
	if s.ClockStartedAt == nil || !s.ClockStartedAt.Equal(resume) {
		t.Fatalf("second half should start running at %v, got %v", resume, s.ClockStartedAt)
	}
	assertEq(t, s.EffectiveElapsed(resume.Add(10*time.Second)), int64(2710))
}

func TestHalfTimeDoesNotAdvance(t *testing.T) {
	s := mustApply(t, Initial(), ActionStartFirstHalf, kickoff)
	s = mustApply(t, s, ActionEndFirstHalf, kickoff.Add(46*time.Minute))
	assertEq(t, s.EffectiveElapsed(kickoff.Add(3*time.Hour)), int64(46*60))
}

func TestEndFirstHalfIgnoredWhenStopped(t *testing.T) {
	s := Initial()
	next, applied, err := s.Apply(ActionEndFirstHalf, kickoff)
	if err != nil || applied {
		t.Fatalf("expected silent ignore, got applied=%v err=%v", applied, err)
	}
	assertEq(t, next.Phase, PhasePre)
}

func TestExtraTimeThresholds(t *testing.T) {
	s := mustApply(t, Initial(), ActionStartFirstHalf, kickoff)

	// 30 minutes in: ignored.
	next, applied, err := s.Apply(ActionAddExtraTime, kickoff.Add(30*time.Minute))
	if err != nil || applied {
		t.Fatalf("expected ignore before 45', applied=%v err=%v", applied, err)
	}
	assertEq(t, next, s)

	// 46 minutes in: stoppage time of the first half.
	et := mustApply(t, s, ActionAddExtraTime, kickoff.Add(46*time.Minute))
	assertEq(t, et.Phase, PhaseExtraTime)
	if et.ClockStartedAt == nil || !et.ClockStartedAt.Equal(kickoff) {
		t.Fatalf("running clock must be left untouched, got %v", et.ClockStartedAt)
	}
	assertEq(t, et.ElapsedSeconds, int64(0))
}

func TestExtraTimeSecondHalfNeedsNinety(t *testing.T) {
	s := State{Status: StatusLive, Phase: PhaseSecondHalf, ElapsedSeconds: 2700}
	start := kickoff
	s.ClockStartedAt = &start

	if _, applied, _ := s.Apply(ActionAddExtraTime, kickoff.Add(20*time.Minute)); applied {
		t.Fatalf("65' in the second half must not enter extra time")
	}
	et := mustApply(t, s, ActionAddExtraTime, kickoff.Add(46*time.Minute))
	assertEq(t, et.Phase, PhaseExtraTime)
}

func TestExtraTimeAtHalfTimeNeedsNinety(t *testing.T) {
	s := mustApply(t, Initial(), ActionStartFirstHalf, kickoff)
	s = mustApply(t, s, ActionEndFirstHalf, kickoff.Add(45*time.Minute))

	// Half time uses the full-match threshold, so first-half stoppage
	// requested after the whistle is ignored.
	next, applied, err := s.Apply(ActionAddExtraTime, kickoff.Add(50*time.Minute))
	if err != nil || applied {
		t.Fatalf("expected ignore at half time with 45:00, applied=%v err=%v", applied, err)
	}
	assertEq(t, next, s)
}

func TestExtraTimeStartsStoppedClock(t *testing.T) {
	s := State{Status: StatusLive, Phase: PhaseHalfTime, ElapsedSeconds: 95 * 60}
	now := kickoff.Add(2 * time.Hour)
	et := mustApply(t, s, ActionAddExtraTime, now)
	if et.ClockStartedAt == nil || !et.ClockStartedAt.Equal(now) {
		t.Fatalf("stopped clock should start at %v, got %v", now, et.ClockStartedAt)
	}
	assertEq(t, et.ElapsedSeconds, int64(95*60))
}

func TestEndMatchFreezesEffectiveElapsed(t *testing.T) {
	s := State{Status: StatusLive, Phase: PhaseSecondHalf, ElapsedSeconds: 2700}
	start := kickoff
	s.ClockStartedAt = &start

	ft := mustApply(t, s, ActionEndMatch, kickoff.Add(47*time.Minute))
	assertEq(t, ft.Status, StatusCompleted)
	assertEq(t, ft.Phase, PhaseFullTime)
	assertEq(t, ft.ElapsedSeconds, int64(2700+47*60))
	if ft.ClockStartedAt != nil {
		t.Fatalf("clock must stop at full time")
	}
}

func TestClockNeverRunsBackwards(t *testing.T) {
	s := mustApply(t, Initial(), ActionStartFirstHalf, kickoff)
	assertEq(t, s.EffectiveElapsed(kickoff.Add(-time.Minute)), int64(0))
}

func TestUnknownAction(t *testing.T) {
	if _, err := ParseAction("PAUSE"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if _, _, err := Initial().Apply(Action("PAUSE"), kickoff); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction from Apply, got %v", err)
	}
	if _, err := ParseAction(""); err == nil {
		t.Fatalf("empty action must be rejected")
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int64]string{
		0:            "0:00",
		65:           "1:05",
		44*60 + 59:   "44:59",
		45 * 60:      "45+0",
		52*60 + 10:   "45+7",
		60 * 60:      "60:00",
		89*60 + 1:    "89:01",
		90 * 60:      "90+0",
		94*60 + 30:   "90+4",
	}
	for in, want := range cases {
		assertEq(t, FormatClock(in), want)
	}
}

func TestFormatEventMinute(t *testing.T) {
	one, two := 1, 2
	assertEq(t, FormatEventMinute(12, nil), "12'")
	assertEq(t, FormatEventMinute(47, &one), "45+2")
	assertEq(t, FormatEventMinute(93, &two), "90+3")
	assertEq(t, FormatEventMinute(47, &two), "47'")
}

func assertEq[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
