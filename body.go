package ekf

import (
	"fmt"
	"strings"
)

// CelestialObject defines the gravitating central body of a propagation.
type CelestialObject struct {
	Name   string
	Radius float64
	μ      float64
	J2     float64
}

// GM returns μ (which is unexported because it's a lowercase letter)
func (c CelestialObject) GM() float64 {
	return c.μ
}

// J returns the perturbing J_n factor for the provided n.
// Currently only J2 is supported.
func (c CelestialObject) J(n uint8) float64 {
	switch n {
	case 2:
		return c.J2
	default:
		return 0.0
	}
}

// String implements the Stringer interface.
func (c CelestialObject) String() string {
	return c.Name + " body"
}

// Equals returns whether the provided celestial object is the same.
func (c *CelestialObject) Equals(b CelestialObject) bool {
	return c.Name == b.Name && c.Radius == b.Radius && c.μ == b.μ && c.J2 == b.J2
}

// CelestialObjectFromString returns the object matching the provided name.
func CelestialObjectFromString(name string) (CelestialObject, error) {
	switch strings.ToLower(name) {
	case "earth":
		return Earth, nil
	case "venus":
		return Venus, nil
	case "mars":
		return Mars, nil
	default:
		return CelestialObject{}, fmt.Errorf("undefined body `%s`", name)
	}
}

// Earth is home.
var Earth = CelestialObject{"Earth", 6378.1363, 3.98600433e5, 1082.6269e-6}

// Venus is poisonous.
var Venus = CelestialObject{"Venus", 6051.8, 3.24858599e5, 0.000027}

// Mars is the vacation place.
var Mars = CelestialObject{"Mars", 3396.19, 4.28283100e4, 1964e-6}
