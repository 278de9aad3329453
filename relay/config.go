package relay

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/voxelsync/voxelsync"
)

const (
	// DefaultHTTPAddress is the default listen address of the relay.
	DefaultHTTPAddress = "localhost:8000"
)

// Config is the parsed TOML configuration of a relay instance.
type Config struct {
	Server  ServerConfig
	Logging voxelsync.LogConfig
	Kafka   voxelsync.KafkaConfig
	Redis   RedisConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	HTTPAddress string `toml:"httpAddress"`

	// AllowedOrigins lists the origins allowed by the CORS layer.  Empty
	// means all origins, matching a relay deployed behind a trusted proxy.
	AllowedOrigins []string `toml:"corsOrigins"`
}

// RedisConfig holds the optional cross-instance bridge settings.  An empty
// address disables the bridge.
type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// LoadConfig reads a TOML config file.  A missing path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	c := &Config{
		Server: ServerConfig{HTTPAddress: DefaultHTTPAddress},
	}
	if path == "" {
		return c, nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("unable to parse config file %q: %v", path, err)
	}
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = DefaultHTTPAddress
	}
	return c, nil
}
