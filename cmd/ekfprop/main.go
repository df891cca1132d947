package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ChristopherRabotin/gokalman"
	"github.com/gonum/matrix/mat64"
	"github.com/spf13/viper"
	"github.com/zhaifengguang/ekf"
)

const (
	defaultScenario = "~~unset~~"
	dateFormat      = "2006-01-02 15:04:05"
)

var (
	scenario string
	debug    = flag.Bool("debug", false, "trace A, STM and dSTM at every evaluation")
	wg       sync.WaitGroup
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "propagation scenario TOML file")
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}

	// Load scenario
	scenario = strings.Replace(scenario, ".toml", "", 1)
	viper.AddConfigPath(".")
	viper.SetConfigName(scenario)
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("./%s.toml: Error %s", scenario, err)
	}

	// Read mission parameters
	startDT, err := time.Parse(dateFormat, viper.GetString("mission.start"))
	if err != nil {
		log.Fatalf("could not parse mission.start: %s", err)
	}
	startDT = startDT.UTC()
	duration := viper.GetDuration("mission.duration")
	timeStep := viper.GetDuration("mission.step")

	// Read the central body
	centralBodyName := viper.GetString("orbit.body")
	centralBody, err := ekf.CelestialObjectFromString(centralBodyName)
	if err != nil {
		log.Fatalf("could not understand body `%s`: %s", centralBodyName, err)
	}

	// Read the initial orbit
	var orbit *ekf.Orbit
	if viper.GetBool("orbit.viaRV") {
		R := make([]float64, 3)
		V := make([]float64, 3)
		for i := 0; i < 3; i++ {
			R[i] = viper.GetFloat64(fmt.Sprintf("orbit.R%d", i+1))
			V[i] = viper.GetFloat64(fmt.Sprintf("orbit.V%d", i+1))
		}
		orbit = ekf.NewOrbitFromRV(R, V, centralBody)
	} else {
		a := viper.GetFloat64("orbit.sma")
		e := viper.GetFloat64("orbit.ecc")
		i := viper.GetFloat64("orbit.inc")
		Ω := viper.GetFloat64("orbit.RAAN")
		ω := viper.GetFloat64("orbit.argPeri")
		ν := viper.GetFloat64("orbit.tAnomaly")
		orbit = ekf.NewOrbitFromOE(a, e, i, Ω, ω, ν, centralBody)
	}
	log.Printf("[info] propagating %s", orbit)

	// Read the active agents, i.e. the filter parameters the STM tracks.
	agents := viper.GetStringSlice("filter.agents")
	if len(agents) == 0 {
		agents = []string{"X", "Y", "Z"}
	}
	log.Printf("[info] active agents: %s", strings.Join(agents, ", "))

	// The gravity field of the central body is the only force contributor of
	// this tool. New contributors would simply be appended here.
	forces := []ekf.ForceModel{ekf.NewGravityFieldFromBody(centralBody)}
	dynamics := ekf.NewDynamics(forces, agents)
	est := ekf.NewOrbitEstimate("ekfprop", *orbit, dynamics, startDT, timeStep)
	if *debug {
		dynamics.SetTracer(ekf.NewLogTracer(est.Logger()))
	}

	// Stream the propagation to a CSV file if requested.
	if viper.GetBool("export.csv") {
		stateChan := make(chan ekf.State, 1000)
		est.RegisterStateChan(stateChan)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ekf.StreamStates(ekf.ExportConfig{Filename: scenario, AsCSV: true, Timestamp: viper.GetBool("export.timestamp")}, stateChan)
		}()
	}

	est.PropagateUntil(startDT.Add(duration))
	wg.Wait()

	Φ := est.STM()
	fmt.Printf("### Final STM\n%v\n", mat64.Formatted(Φ, mat64.Prefix("")))

	// EKF time update of the covariance: P+ = Φ P0 Φ^T. The measurement
	// update itself belongs to the consuming filter, not to this tool.
	N := len(agents)
	σ := viper.GetFloat64("covariance.position")
	if σ == 0 {
		σ = 1
	}
	P0 := gokalman.ScaledDenseIdentity(N, σ)
	var PΦt, P mat64.Dense
	PΦt.Mul(P0, Φ.T())
	P.Mul(Φ, &PΦt)
	PSym, err := gokalman.AsSymDense(&P)
	if err != nil {
		log.Fatalf("propagated covariance is not symmetric: %s", err)
	}
	fmt.Printf("### Propagated covariance (σ0=%g)\n%v\n", σ, mat64.Formatted(PSym, mat64.Prefix("")))
}
