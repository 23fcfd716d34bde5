package config

import (
	"encoding/json"
	"os"

	"github.com/speakingcat21/filesoldier/internal/flagx"
	"github.com/speakingcat21/filesoldier/internal/timex"
)

// JsonConfig is the DTO for reading JSON configuration files. Interval
// fields use timex.Duration so both "30s" strings and integer
// nanoseconds parse.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
}

// parseJson overlays values from the JSON file named by -c/-config onto
// cfg. Absent file path means no overlay; an unreadable or invalid file
// panics, since running with half-applied config is worse than not
// starting.
func parseJson(cfg *Config) {
	fileName := flagx.JsonConfigFlags()
	if fileName == "" {
		return
	}

	data, err := os.ReadFile(fileName)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
