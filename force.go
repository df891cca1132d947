package ekf

import (
	"fmt"
	"math"
)

// ForceModel represents a single physical effect acting on the propagated
// vehicle. Implementations accumulate their contribution into the caller
// owned buffers, so several models can act on the same trajectory.
type ForceModel interface {
	// GetAcceleration adds this model's acceleration (km/s^2) for the given
	// state into accel, a 3 element accumulator.
	GetAcceleration(accel, state []float64)
	// GetPartials adds the partial derivative of this model's acceleration
	// with respect to each ordered pair of active agents into partials, an
	// N*N accumulator in row major order.
	GetPartials(partials, state []float64, agents []string)
}

// agentPair keys an evaluated partial derivative: the partial of the
// acceleration along `top` taken with respect to `bottom`.
type agentPair struct {
	top, bottom string
}

// GravityField models the point mass gravity of a central body along with
// its J2 oblateness perturbation.
type GravityField struct {
	Name   string
	Radius float64
	μ      float64
	J2     float64
	// evaledPartials holds the partials for the state last passed to
	// GetPartials. It is overwritten on every call.
	evaledPartials map[agentPair]float64
}

// NewGravityField returns a gravity+J2 force model from raw constants.
func NewGravityField(name string, radius, μ, J2 float64) *GravityField {
	return &GravityField{name, radius, μ, J2, make(map[agentPair]float64, 9)}
}

// NewGravityFieldFromBody returns the gravity+J2 force model of a celestial object.
func NewGravityFieldFromBody(c CelestialObject) *GravityField {
	return NewGravityField(c.Name, c.Radius, c.μ, c.J2)
}

// String implements the Stringer interface.
func (g *GravityField) String() string {
	return fmt.Sprintf("gravity field of %s (μ=%g J2=%g)", g.Name, g.μ, g.J2)
}

// GetAcceleration adds the two-body acceleration scaled by the J2 correction
// factor of each axis into accel.
func (g *GravityField) GetAcceleration(accel, state []float64) {
	r3 := math.Pow(norm(state[:3]), 3)
	accel[0] += -g.μ * state[0] / r3 * g.accJ2(state, 'x')
	accel[1] += -g.μ * state[1] / r3 * g.accJ2(state, 'y')
	accel[2] += -g.μ * state[2] / r3 * g.accJ2(state, 'z')
}

// GetPartials re-evaluates the partials of this field for the given state and
// adds the value for every ordered agent pair into partials. Pairs this field
// does not model contribute exactly zero.
func (g *GravityField) GetPartials(partials, state []float64, agents []string) {
	g.evalPartials(state)
	N := len(agents)
	for i := 0; i < N; i++ {
		for j := 0; j < N; j++ {
			partials[i*N+j] += g.AgentPartial(agents[i], agents[j])
		}
	}
}

// AgentPartial returns the evaluated partial of the agent top with respect to
// the agent bottom, or exactly 0.0 when this field does not model the pair.
// The value reflects the state last passed to GetPartials.
func (g *GravityField) AgentPartial(top, bottom string) float64 {
	return g.evaledPartials[agentPair{top, bottom}]
}

// accJ2 returns the J2 correction factor of the two-body acceleration for the
// requested axis. An unknown axis is a programming fault, not a runtime error.
func (g *GravityField) accJ2(state []float64, component byte) float64 {
	r := norm(state[:3])
	Rr2 := math.Pow(g.Radius/r, 2)
	Zr2 := math.Pow(state[2]/r, 2)
	switch component {
	case 'x', 'y':
		return 1 - 1.5*g.J2*Rr2*(5*Zr2-1)
	case 'z':
		return 1 - 1.5*g.J2*Rr2*(5*Zr2-3)
	default:
		panic(fmt.Errorf("unknown axis %q in J2 perturbation request", component))
	}
}

// evalPartials overwrites the evaluated partials with the closed form
// gradient of the gravity+J2 acceleration at the given state.
// The partials with respect to the velocity components, the body radius, μ
// and J2 are not implemented yet and evaluate to zero.
func (g *GravityField) evalPartials(state []float64) {
	// Condense variable names to make the equations legible.
	μ := g.μ
	J2 := g.J2
	X := state[0]
	Y := state[1]
	Z := state[2]
	r := norm(state[:3])
	r3 := math.Pow(r, 3)
	r5 := math.Pow(r, 5)
	Rr2 := math.Pow(g.Radius/r, 2)
	Zr2 := math.Pow(Z/r, 2)

	// Partials of the acceleration X component wrt position.
	g.evaledPartials[agentPair{"X", "X"}] = -μ/r3*(1-1.5*J2*Rr2*(5*Zr2-1)) +
		3*μ*X*X/r5*(1-2.5*J2*Rr2*(7*Zr2-1))
	g.evaledPartials[agentPair{"X", "Y"}] = 3 * μ * X * Y / r5 * (1 - 2.5*J2*Rr2*(7*Zr2-1))
	g.evaledPartials[agentPair{"X", "Z"}] = 3 * μ * X * Z / r5 * (1 - 2.5*J2*Rr2*(7*Zr2-3))

	// Partials of the acceleration Y component wrt position.
	g.evaledPartials[agentPair{"Y", "X"}] = 3 * μ * X * Y / r5 * (1 - 2.5*J2*Rr2*(7*Zr2-1))
	g.evaledPartials[agentPair{"Y", "Y"}] = -μ/r3*(1-1.5*J2*Rr2*(5*Zr2-1)) +
		3*μ*Y*Y/r5*(1-2.5*J2*Rr2*(7*Zr2-1))
	g.evaledPartials[agentPair{"Y", "Z"}] = 3 * μ * Y * Z / r5 * (1 - 2.5*J2*Rr2*(7*Zr2-3))

	// Partials of the acceleration Z component wrt position.
	g.evaledPartials[agentPair{"Z", "X"}] = 3 * μ * X * Z / r5 * (1 - 2.5*J2*Rr2*(7*Zr2-3))
	g.evaledPartials[agentPair{"Z", "Y"}] = 3 * μ * Y * Z / r5 * (1 - 2.5*J2*Rr2*(7*Zr2-3))
	g.evaledPartials[agentPair{"Z", "Z"}] = -μ/r3*(1-1.5*J2*Rr2*(5*Zr2-3)) +
		3*μ*Z*Z/r5*(1-2.5*J2*Rr2*(7*Zr2-5))
}
