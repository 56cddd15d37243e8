package backend

import (
	"context"
	"testing"
	"time"

	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/instrument"
)

func TestSimulatorConfirmsCommands(t *testing.T) {
	sim := NewSimulator(false)

	outcome := sim.Perform(context.Background(), instrument.Wash())
	if !outcome.OK {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.Duration != time.Second {
		t.Errorf("duration = %v, want 1s for wash", outcome.Duration)
	}
}

func TestSimulatorBatchDurationIsLongestElement(t *testing.T) {
	sim := NewSimulator(false)

	// Pickup is 500ms, the five-cycle mix is 1500ms.
	outcome := sim.PerformBatch(context.Background(), []instrument.Command{
		instrument.PickupTip(0, instrument.Position{}),
		instrument.Mix(1, instrument.WellRef{Plate: "P", Well: "A1"}, 5, 10),
	})
	if !outcome.OK {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if outcome.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v, want 1.5s", outcome.Duration)
	}
}

func TestSimulatorInjectedFault(t *testing.T) {
	sim := NewSimulator(false)
	sim.InjectFault(instrument.KindAspirate, "clot detected")

	outcome := sim.Perform(context.Background(),
		instrument.Aspirate(0, instrument.WellRef{Plate: "P", Well: "A1"}, 10, instrument.LiquidParams{}))
	if outcome.OK {
		t.Fatal("expected injected fault")
	}
	if outcome.Reason != "clot detected" {
		t.Errorf("reason = %q", outcome.Reason)
	}

	// Other kinds are unaffected.
	if o := sim.Perform(context.Background(), instrument.Wash()); !o.OK {
		t.Errorf("wash failed: %+v", o)
	}

	sim.ClearFault(instrument.KindAspirate)
	outcome = sim.Perform(context.Background(),
		instrument.Aspirate(0, instrument.WellRef{Plate: "P", Well: "A1"}, 10, instrument.LiquidParams{}))
	if !outcome.OK {
		t.Errorf("outcome after ClearFault = %+v, want success", outcome)
	}
}

func TestSimulatorFaultFailsWholeBatch(t *testing.T) {
	sim := NewSimulator(false)
	sim.InjectFault(instrument.KindPickupTip, "tip rack empty")

	outcome := sim.PerformBatch(context.Background(), []instrument.Command{
		instrument.Wash(),
		instrument.PickupTip(0, instrument.Position{}),
	})
	if outcome.OK {
		t.Fatal("expected batch failure from injected fault")
	}
	if outcome.Reason != "tip rack empty" {
		t.Errorf("reason = %q", outcome.Reason)
	}
}

func TestSimulatorRealTimeHonoursCancellation(t *testing.T) {
	sim := NewSimulator(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	outcome := sim.Perform(ctx, instrument.Wash())
	if outcome.OK {
		t.Fatal("expected failure for cancelled real-time action")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancelled action took %v, should return promptly", elapsed)
	}
}

func TestSimulatorDrivesEngine(t *testing.T) {
	sim := NewSimulator(false)
	eng, err := engine.New(engine.Config{
		PreloadedTips: []int{0},
		SeedVolumes: map[instrument.WellRef]float64{
			{Plate: "Source_96", Well: "A1"}: 100,
		},
	}, sim)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	result, err := eng.Execute(context.Background(), []instrument.Command{
		instrument.Aspirate(0, instrument.WellRef{Plate: "Source_96", Well: "A1"}, 50, instrument.LiquidParams{}),
		instrument.Dispense(0, instrument.WellRef{Plate: "Dest_96", Well: "A1"}, 50, instrument.LiquidParams{}),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Completed != 2 {
		t.Errorf("completed = %d, want 2", result.Completed)
	}
	if got := eng.Status().WellVolumes["Dest_96:A1"]; got != 50 {
		t.Errorf("destination volume = %v, want 50", got)
	}
}
