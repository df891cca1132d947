package ekf

import (
	"os"
	"time"

	"github.com/ChristopherRabotin/gokalman"
	"github.com/ChristopherRabotin/ode"
	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

const (
	// transitionPhiOnly rebases Φ to the per-step transition matrix on each
	// SetState instead of keeping Φ(t, t0). Filter updates which consume
	// Φ(t_k+1, t_k) directly would set this to true.
	transitionPhiOnly = false
)

// OrbitEstimate propagates an orbit estimate and its state transition matrix.
// It implements ode.Integrable over the augmented state [R V Φ].
type OrbitEstimate struct {
	Φ        *mat64.Dense  // STM
	Orbit    Orbit         // estimated orbit
	dynamics *Dynamics     // force summation and Jacobian assembly
	StopDT   time.Time     // end time of the integration
	dt       time.Time     // current time of the integration
	step     time.Duration // time step
	logger   kitlog.Logger // logger
	histChan chan<- State  // propagation history stream
}

// State is a sample of a propagation: the epoch, the estimated orbit and a
// copy of the STM at that epoch.
type State struct {
	DT    time.Time
	Orbit Orbit
	Φ     *mat64.Dense
}

// GetState gets the augmented state.
func (e *OrbitEstimate) GetState() []float64 {
	rΦ, cΦ := e.Φ.Dims()
	s := make([]float64, 6+rΦ*cΦ)
	R, V := e.Orbit.RV()
	s[0] = R[0]
	s[1] = R[1]
	s[2] = R[2]
	s[3] = V[0]
	s[4] = V[1]
	s[5] = V[2]
	// Add the components of Φ
	sIdx := 6
	for i := 0; i < rΦ; i++ {
		for j := 0; j < cΦ; j++ {
			s[sIdx] = e.Φ.At(i, j)
			sIdx++
		}
	}
	return s
}

// SetState sets the next state at time t.
func (e *OrbitEstimate) SetState(t float64, s []float64) {
	R := []float64{s[0], s[1], s[2]}
	V := []float64{s[3], s[4], s[5]}
	e.Orbit = *NewOrbitFromRV(R, V, e.Orbit.Origin)
	// Extract the components of Φ
	sIdx := 6
	rΦ, cΦ := e.Φ.Dims()
	Φk20 := mat64.NewDense(rΦ, cΦ, nil)
	for i := 0; i < rΦ; i++ {
		for j := 0; j < cΦ; j++ {
			Φk20.Set(i, j, s[sIdx])
			sIdx++
		}
	}
	if transitionPhiOnly {
		// Compute the Φ for this transition
		var Φinv mat64.Dense
		if err := Φinv.Inverse(e.Φ); err != nil {
			panic("could not invert e.Φ")
		}
		e.Φ.Mul(Φk20, &Φinv)
	} else {
		e.Φ = Φk20
	}
	// Increment the time.
	e.dt = e.dt.Add(e.step)
	if e.histChan != nil {
		e.histChan <- e.State()
	}
}

// Stop returns whether we should stop the integration.
func (e *OrbitEstimate) Stop(t float64) bool {
	return e.dt.After(e.StopDT)
}

// State returns the latest propagated state.
func (e *OrbitEstimate) State() State {
	return State{e.dt, e.Orbit, e.STM()}
}

// STM returns a copy of the current state transition matrix. This is what a
// measurement update consumes; this package does not perform that update.
func (e *OrbitEstimate) STM() *mat64.Dense {
	var Φ mat64.Dense
	Φ.Clone(e.Φ)
	return &Φ
}

// Logger returns the logger of this estimate.
func (e *OrbitEstimate) Logger() kitlog.Logger {
	return e.logger
}

// RegisterStateChan registers a channel to stream propagated states to, e.g.
// for the CSV exporter. The channel is closed once the propagation finishes.
func (e *OrbitEstimate) RegisterStateChan(c chan<- State) {
	e.histChan = c
}

// Func does the math. Returns a new state.
func (e *OrbitEstimate) Func(t float64, f []float64) []float64 {
	return e.dynamics.Eval(t, f)
}

// PropagateUntil propagates until the given time is reached.
func (e *OrbitEstimate) PropagateUntil(dt time.Time) {
	e.StopDT = dt
	e.logger.Log("level", "info", "subsys", "ode", "date", e.dt, "orbit", e.Orbit)
	ode.NewRK4(0, e.step.Seconds(), e).Solve() // Blocking.
	e.logger.Log("level", "notice", "subsys", "ode", "status", "finished", "date", e.dt, "orbit", e.Orbit)
	if e.histChan != nil {
		close(e.histChan)
	}
}

// NewOrbitEstimate returns a new orbit estimate, its STM initialized to
// identity, ready to be propagated with the provided dynamics.
func NewOrbitEstimate(n string, o Orbit, dyn *Dynamics, epoch time.Time, step time.Duration) *OrbitEstimate {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "estimate", n)
	if ekfConfig().debug {
		dyn.SetTracer(NewLogTracer(klog))
	}
	// XXX: The step is added to the epoch because the time increment happens
	// in SetState while Stop is called at the start of the integration.
	return &OrbitEstimate{gokalman.DenseIdentity(dyn.NumAgents()), o, dyn, epoch, epoch.Add(step), step, klog, nil}
}
