package cluster

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Addr is a host:port pair for one service endpoint.
type Addr struct {
	Host string
	Port int
}

// URL returns the http base URL for the address.
func (a Addr) URL() string {
	return fmt.Sprintf("http://%s:%d", a.Host, a.Port)
}

// Listen returns the bind address (":port") for the endpoint.
func (a Addr) Listen() string {
	return fmt.Sprintf(":%d", a.Port)
}

// Config holds the static three-tier topology. Everything is read from
// the environment; defaults match a single-machine deployment.
type Config struct {
	Catalog   Addr
	Front     Addr
	Orders    map[int]Addr
	CacheSize int
	LogLevel  string
}

// LoadConfig reads the topology from environment variables:
// CATALOG_HOST/CATALOG_PORT, FRONT_HOST/FRONT_PORT,
// ORDER_{1,2,3}_HOST/ORDER_{1,2,3}_PORT, CACHE_SIZE, LOG_LEVEL.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("CATALOG_HOST", "localhost")
	v.SetDefault("CATALOG_PORT", 8002)
	v.SetDefault("FRONT_HOST", "localhost")
	v.SetDefault("FRONT_PORT", 8000)
	v.SetDefault("ORDER_1_HOST", "localhost")
	v.SetDefault("ORDER_1_PORT", 8003)
	v.SetDefault("ORDER_2_HOST", "localhost")
	v.SetDefault("ORDER_2_PORT", 8004)
	v.SetDefault("ORDER_3_HOST", "localhost")
	v.SetDefault("ORDER_3_PORT", 8005)
	v.SetDefault("CACHE_SIZE", 3)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Catalog:   Addr{Host: v.GetString("CATALOG_HOST"), Port: v.GetInt("CATALOG_PORT")},
		Front:     Addr{Host: v.GetString("FRONT_HOST"), Port: v.GetInt("FRONT_PORT")},
		Orders:    make(map[int]Addr, len(ReplicaIDs)),
		CacheSize: v.GetInt("CACHE_SIZE"),
		LogLevel:  v.GetString("LOG_LEVEL"),
	}
	for _, id := range ReplicaIDs {
		cfg.Orders[id] = Addr{
			Host: v.GetString(fmt.Sprintf("ORDER_%d_HOST", id)),
			Port: v.GetInt(fmt.Sprintf("ORDER_%d_PORT", id)),
		}
	}
	if cfg.CacheSize <= 0 {
		return nil, errors.Errorf("CACHE_SIZE must be positive, got %d", cfg.CacheSize)
	}
	return cfg, nil
}

// OrderURL returns the base URL for the replica with the given id.
func (c *Config) OrderURL(id int) string {
	return c.Orders[id].URL()
}
