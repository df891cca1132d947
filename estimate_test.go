package ekf

import (
	"math"
	"testing"
	"time"

	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

func TestEstimateStatePacking(t *testing.T) {
	orbit := NewOrbitFromOE(7000, 0.00001, 30, 80, 40, 0, Earth)
	agents := []string{"X", "Y", "Z"}
	dyn := NewDynamics([]ForceModel{NewGravityFieldFromBody(Earth)}, agents)
	est := NewOrbitEstimate("packing", *orbit, dyn, time.Now().UTC(), time.Second)
	s := est.GetState()
	if len(s) != 6+9 {
		t.Fatalf("augmented state length: got %d want 15", len(s))
	}
	R, V := orbit.RV()
	for i := 0; i < 3; i++ {
		if s[i] != R[i] || s[i+3] != V[i] {
			t.Fatal("position/velocity not packed in the first six entries")
		}
	}
	// The STM starts as identity.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if s[6+j+i*3] != want {
				t.Fatalf("initial Φ[%d,%d] = %g", i, j, s[6+j+i*3])
			}
		}
	}
	// A state set must be read back identically.
	s[6] = 1.5
	s[7] = -0.25
	est.SetState(0, s)
	Φ := est.STM()
	if Φ.At(0, 0) != 1.5 || Φ.At(0, 1) != -0.25 {
		t.Fatalf("Φ not read back from the state vector: %+v", Φ)
	}
}

func TestEstimatePropagation(t *testing.T) {
	// A two-body propagation of a circular orbit must keep its radius, and
	// the STM must drift away from identity.
	startDT := time.Now().UTC()
	orbit := NewOrbitFromOE(7000, 0.00001, 30, 80, 40, 0, Earth)
	rInit := orbit.RNorm()
	dyn := NewDynamics([]ForceModel{NewGravityField("pointmass", Earth.Radius, Earth.GM(), 0)}, []string{"X", "Y", "Z"})
	est := NewOrbitEstimate("circular", *orbit, dyn, startDT, 10*time.Second)
	est.PropagateUntil(startDT.Add(10 * time.Minute))
	if !floats.EqualWithinRel(est.Orbit.RNorm(), rInit, 1e-6) {
		t.Fatalf("circular orbit radius drifted: %f -> %f", rInit, est.Orbit.RNorm())
	}
	if mat64.Equal(est.STM(), gokalmanIdentity(3)) {
		t.Fatal("STM did not evolve")
	}
	finalDT := est.State().DT
	if finalDT.Before(startDT.Add(10 * time.Minute)) {
		t.Fatalf("propagation stopped early at %s", finalDT)
	}
}

func TestEstimateSingleAgentTransition(t *testing.T) {
	// With one agent, dΦ/dt = A[0][0]·Φ. Near the X axis dX/dX ≈ 2μ/r³ > 0,
	// so a short propagation must grow Φ slightly above 1.
	startDT := time.Now().UTC()
	r := 7000.0
	v := math.Sqrt(Earth.GM() / r)
	orbit := NewOrbitFromRV([]float64{r, 0, 0}, []float64{0, v, 0}, Earth)
	dyn := NewDynamics([]ForceModel{NewGravityFieldFromBody(Earth)}, []string{"X"})
	est := NewOrbitEstimate("scalar", *orbit, dyn, startDT, time.Second)
	est.PropagateUntil(startDT.Add(30 * time.Second))
	Φ := est.STM()
	if r, c := Φ.Dims(); r != 1 || c != 1 {
		t.Fatalf("expected a 1x1 STM, got %dx%d", r, c)
	}
	if Φ.At(0, 0) <= 1.0 || Φ.At(0, 0) >= 1.01 {
		t.Fatalf("unexpected scalar transition %g", Φ.At(0, 0))
	}
}

// gokalmanIdentity avoids importing gokalman in the tests.
func gokalmanIdentity(n int) *mat64.Dense {
	m := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
