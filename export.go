package ekf

import (
	"fmt"
	"os"
	"time"

	"github.com/soniakeys/meeus/julian"
)

// ExportConfig configures the propagation export.
type ExportConfig struct {
	Filename     string
	AsCSV        bool
	Timestamp    bool
	CSVAppend    func(st State) string // Custom export (do not include leading comma)
	CSVAppendHdr func() string         // Header for the custom export
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV
}

// createStateCSVFile returns a file which requires a defer close statement!
func createStateCSVFile(conf ExportConfig, stateDT time.Time, numAgents int) *os.File {
	config := ekfConfig()
	var filename string
	if conf.Timestamp {
		t := time.Now()
		filename = fmt.Sprintf("%s/prop-%s-%d-%02d-%02dT%02d.%02d.%02d.csv", config.outputDir, conf.Filename, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	} else {
		filename = fmt.Sprintf("%s/prop-%s.csv", config.outputDir, conf.Filename)
	}
	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	// Header
	f.WriteString(fmt.Sprintf(`# Creation date (UTC): %s
# Records are time, jd, position (km), velocity (km/s) and the STM in row major order.
#   Time is a UTC Julian date
#   Simulation time start (UTC): %s
time,jd,x,y,z,vx,vy,vz`, time.Now(), stateDT.UTC()))
	for i := 0; i < numAgents; i++ {
		for j := 0; j < numAgents; j++ {
			f.WriteString(fmt.Sprintf(",stm_%d_%d", i, j))
		}
	}
	if conf.CSVAppendHdr != nil {
		f.WriteString("," + conf.CSVAppendHdr())
	}
	f.WriteString("\n")
	return f
}

// StreamStates streams the propagated states to a CSV file. It consumes the
// channel until it is closed, so run it in its own goroutine.
func StreamStates(conf ExportConfig, stateChan <-chan State) {
	if conf.IsUseless() {
		for range stateChan {
			// Drain the channel so the propagation does not block.
		}
		return
	}
	var f *os.File
	for state := range stateChan {
		if f == nil {
			rΦ, _ := state.Φ.Dims()
			f = createStateCSVFile(conf, state.DT, rΦ)
			defer f.Close()
		}
		R, V := state.Orbit.RV()
		f.WriteString(fmt.Sprintf("%s,%.9f,%f,%f,%f,%f,%f,%f", state.DT.UTC().Format(time.RFC3339), julian.TimeToJD(state.DT.UTC()), R[0], R[1], R[2], V[0], V[1], V[2]))
		rΦ, cΦ := state.Φ.Dims()
		for i := 0; i < rΦ; i++ {
			for j := 0; j < cΦ; j++ {
				f.WriteString(fmt.Sprintf(",%.12e", state.Φ.At(i, j)))
			}
		}
		if conf.CSVAppend != nil {
			f.WriteString("," + conf.CSVAppend(state))
		}
		f.WriteString("\n")
	}
}
