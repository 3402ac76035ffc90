package weft

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/weftsrv/weft/cmn"
	"github.com/weftsrv/weft/cmn/cos"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the engine's static, load-once configuration. When an Engine
// is built with NewEngineFromConfig, the worker count, query-size cap,
// and verbosity are also mirrored into cmn.Rom.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	ListenPort int    `json:"listen_port"`
	Backlog    int    `json:"backlog"`

	NumReactors  int `json:"num_reactors"`
	QuerySizeCap int `json:"query_size_cap"`

	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`

	LogDir         string `json:"log_dir"`
	LogToStderr    bool   `json:"log_to_stderr"`
	AlsoLogStderr  bool   `json:"also_log_to_stderr"`
	Verbose        bool   `json:"verbose"`
}

// DefaultQuerySizeCap is the 8192-byte query-string length cap named in
// spec.md section 4.2.
const DefaultQuerySizeCap = 8192

// LoadConfig decodes a JSON config file at path. A missing or malformed
// file is a ConfigError: fatal at allocation time, per spec.md section 7.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cos.NewConfigError("read config %q: %v", path, err)
	}
	cfg := &Config{
		Backlog:      128,
		NumReactors:  1,
		QuerySizeCap: DefaultQuerySizeCap,
	}
	if err := jsonAPI.Unmarshal(data, cfg); err != nil {
		return nil, cos.NewConfigError("parse config %q: %v", path, err)
	}
	if cfg.ListenPort <= 0 {
		return nil, cos.NewConfigError("config %q: listen_port must be positive", path)
	}
	if cfg.QuerySizeCap <= 0 {
		cfg.QuerySizeCap = DefaultQuerySizeCap
	}
	return cfg, nil
}

func (c *Config) apply() {
	cmn.Rom.Set(c.NumReactors, c.QuerySizeCap, c.Verbose)
}
