package recovery

import "testing"

func TestWalSenderDrainingToAlmostCaughtUp(t *testing.T) {
	cfg := Config{MinRecoveryLag: 100, MaxRecoveryLag: 10000}
	ws := NewWalSender(2, cfg, func() int { return 1 })

	if phase := ws.Report(0, 5000); phase != PhaseDraining {
		t.Fatalf("phase = %v, want draining", phase)
	}
	if phase := ws.Report(4950, 5000); phase != PhaseAlmostCaughtUp {
		t.Fatalf("phase = %v, want almost-caught-up", phase)
	}
	if !ws.ClusterLockAsserted() {
		t.Fatalf("ClusterLockAsserted() = false, want true while almost caught up")
	}
}

func TestWalSenderCaughtUpRequiresZeroActiveTransactions(t *testing.T) {
	cfg := Config{MinRecoveryLag: 100, MaxRecoveryLag: 10000}
	active := 1
	ws := NewWalSender(2, cfg, func() int { return active })

	if phase := ws.Report(5000, 5000); phase != PhaseAlmostCaughtUp {
		t.Fatalf("phase = %v, want almost-caught-up while donor has an active transaction", phase)
	}

	active = 0
	if phase := ws.Report(5000, 5000); phase != PhaseCaughtUp {
		t.Fatalf("phase = %v, want caught-up once donor goes idle", phase)
	}
	if ws.ClusterLockAsserted() {
		t.Fatalf("ClusterLockAsserted() = true, want false once caught up")
	}
}

func TestWalSenderDropsOnExcessLag(t *testing.T) {
	cfg := Config{MinRecoveryLag: 100, MaxRecoveryLag: 1000}
	ws := NewWalSender(3, cfg, func() int { return 0 })

	if phase := ws.Report(0, 5000); phase != PhaseDropped {
		t.Fatalf("phase = %v, want dropped", phase)
	}
}

func TestDonorControllerAssertsLockIfAnySlotAlmostCaughtUp(t *testing.T) {
	cfg := Config{MinRecoveryLag: 100, MaxRecoveryLag: 10000}
	dc := NewDonorController()

	a := dc.OpenSlot(2, cfg, func() int { return 0 })
	b := dc.OpenSlot(3, cfg, func() int { return 0 })

	a.Report(0, 5000)
	if dc.ClusterLockAsserted() {
		t.Fatalf("lock asserted with both slots still draining")
	}

	b.Report(4950, 5000)
	if !dc.ClusterLockAsserted() {
		t.Fatalf("lock not asserted once one slot goes almost-caught-up")
	}

	dc.CloseSlot(3)
	if dc.ClusterLockAsserted() {
		t.Fatalf("lock still asserted after the almost-caught-up slot closed")
	}
}
