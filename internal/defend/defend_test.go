package defend

import (
	"testing"
	"time"
)

func TestEscalationAfterMaxAttempts(t *testing.T) {
	d := NewDefender(3, 15*time.Second)
	origin := "conn-1"

	d.RegisterInvalidTry(origin)
	d.RegisterInvalidTry(origin)
	if d.IsBlocked(origin) {
		t.Fatal("two failures should not suspend the origin")
	}

	d.RegisterInvalidTry(origin)
	if !d.IsBlocked(origin) {
		t.Fatal("third failure should suspend the origin")
	}

	if count := d.tracker.Count(origin); count != 0 {
		t.Fatalf("counter should be cleared on suspension, got %d", count)
	}
}

func TestClearHistoryForgivesFailures(t *testing.T) {
	d := NewDefender(3, 15*time.Second)
	origin := "conn-1"

	d.RegisterInvalidTry(origin)
	d.RegisterInvalidTry(origin)
	d.ClearHistory(origin)

	d.RegisterInvalidTry(origin)
	d.RegisterInvalidTry(origin)
	if d.IsBlocked(origin) {
		t.Fatal("cleared history should reset the escalation counter")
	}
}

func TestSuspensionSelfClears(t *testing.T) {
	d := NewDefender(1, 15*time.Second)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d.scheduler.now = func() time.Time { return now }

	origin := "conn-1"
	d.RegisterInvalidTry(origin)
	if !d.IsBlocked(origin) {
		t.Fatal("origin should be suspended")
	}

	now = now.Add(15 * time.Second)
	if !d.IsBlocked(origin) {
		t.Fatal("origin should still be suspended exactly at the window boundary")
	}

	now = now.Add(time.Second)
	if d.IsBlocked(origin) {
		t.Fatal("suspension should self-clear after the window")
	}
	if _, ok := d.scheduler.suspendedAt[origin]; ok {
		t.Fatal("lapsed suspension should be reaped by the check")
	}
}

func TestOriginsAreIndependent(t *testing.T) {
	d := NewDefender(2, 15*time.Second)

	d.RegisterInvalidTry("conn-1")
	d.RegisterInvalidTry("conn-1")
	d.RegisterInvalidTry("conn-2")

	if !d.IsBlocked("conn-1") {
		t.Fatal("conn-1 should be suspended")
	}
	if d.IsBlocked("conn-2") {
		t.Fatal("conn-2 should not be suspended")
	}
}

func TestReleaseLiftsSuspension(t *testing.T) {
	d := NewDefender(1, 15*time.Second)

	d.RegisterInvalidTry("conn-1")
	d.Release("conn-1")

	if d.IsBlocked("conn-1") {
		t.Fatal("release should lift the suspension")
	}
}
