package ekf

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var (
	cfgLoaded = false
	config    = _ekfconfig{outputDir: "."}
)

// _ekfconfig is a "hidden" struct, just use `ekfConfig`
type _ekfconfig struct {
	outputDir string
	debug     bool
}

// ekfConfig returns the ekf configuration. The configuration is read once
// from $EKF_CONFIG/conf.toml; when the environment variable is not set, the
// defaults apply (output to the working directory, no debug tracing).
func ekfConfig() _ekfconfig {
	if cfgLoaded {
		return config
	}
	confPath := os.Getenv("EKF_CONFIG")
	if confPath != "" {
		// Use a private viper instance: the global one may hold a caller's
		// scenario, and ReadInConfig would replace its configuration map.
		v := viper.New()
		v.SetConfigName("conf")
		v.AddConfigPath(confPath)
		if err := v.ReadInConfig(); err != nil {
			panic(fmt.Errorf("%s/conf.toml not found", confPath))
		}
		if outputDir := v.GetString("general.output_path"); outputDir != "" {
			config.outputDir = outputDir
		}
		config.debug = v.GetBool("general.debug")
	}
	cfgLoaded = true
	return config
}
