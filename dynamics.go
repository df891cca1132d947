package ekf

import (
	"fmt"

	kitlog "github.com/go-kit/kit/log"
	"github.com/gonum/matrix/mat64"
)

// Tracer receives the intermediate matrices of an evaluation. It is a pure
// diagnostic sink: it must never modify the matrices it is handed.
type Tracer interface {
	Trace(t float64, A, stm, stmDot mat64.Matrix)
}

// Dynamics sums the accelerations and partials of a fixed set of force
// models and forms the derivative of the augmented state
// [R V Φ] where dΦ/dt = A×Φ.
// It does not own the force models nor the agent list: both are supplied at
// construction and must outlive this struct.
// Dynamics performs no dimension checks: the caller guarantees that the
// state it evaluates has length 6+N² for N active agents.
type Dynamics struct {
	forces []ForceModel
	agents []string
	tracer Tracer
}

// NewDynamics returns the dynamics of the provided force models for the
// ordered list of active agents.
func NewDynamics(forces []ForceModel, agents []string) *Dynamics {
	return &Dynamics{forces: forces, agents: agents}
}

// NumAgents returns the number of active agents, i.e. the dimension of the STM.
func (d *Dynamics) NumAgents() int {
	return len(d.agents)
}

// SetTracer registers a diagnostic sink invoked with A, Φ and dΦ/dt on every
// evaluation. Pass nil to disable tracing.
func (d *Dynamics) SetTracer(tr Tracer) {
	d.tracer = tr
}

// Eval returns the derivative of the augmented state x at time t. This is
// the function the ODE integrator calls at every integration node, possibly
// with non physical intermediate states.
func (d *Dynamics) Eval(t float64, x []float64) []float64 {
	N := len(d.agents)

	// Accumulate the accelerations of the force models.
	accel := make([]float64, 3)
	for _, force := range d.forces {
		force.GetAcceleration(accel, x)
	}

	// Accumulate the partials of the force models. Several models may
	// contribute to the same entry, hence the summation.
	buf := make([]float64, N*N)
	for _, force := range d.forces {
		force.GetPartials(buf, x, d.agents)
	}

	// Write the agent partials into A and read the current STM out of the
	// augmented state, both in row major order.
	A := mat64.NewDense(N, N, nil)
	stm := mat64.NewDense(N, N, nil)
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			A.Set(i, j, buf[j+i*N])
			stm.Set(i, j, x[6+j+i*N])
		}
	}

	stmDot := mat64.NewDense(N, N, nil)
	stmDot.Mul(A, stm)

	if d.tracer != nil {
		d.tracer.Trace(t, A, stm, stmDot)
	}

	xDot := make([]float64, 6+N*N)
	// d\vec{R}/dt
	xDot[0] = x[3]
	xDot[1] = x[4]
	xDot[2] = x[5]
	// d\vec{V}/dt
	xDot[3] = accel[0]
	xDot[4] = accel[1]
	xDot[5] = accel[2]
	// dΦ/dt
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			xDot[6+j+i*N] = stmDot.At(i, j)
		}
	}
	return xDot
}

// logTracer dumps the evaluation matrices on a go-kit logger.
type logTracer struct {
	logger kitlog.Logger
}

// NewLogTracer returns a Tracer which logs every evaluation.
func NewLogTracer(logger kitlog.Logger) Tracer {
	return logTracer{logger}
}

func (lt logTracer) Trace(t float64, A, stm, stmDot mat64.Matrix) {
	lt.logger.Log("subsys", "dynamics", "t", t,
		"A", fmt.Sprintf("%v", mat64.Formatted(A, mat64.Prefix(""))),
		"STM", fmt.Sprintf("%v", mat64.Formatted(stm, mat64.Prefix(""))),
		"dSTM", fmt.Sprintf("%v", mat64.Formatted(stmDot, mat64.Prefix(""))))
}
