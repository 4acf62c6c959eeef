package triplestore

import (
	"fmt"
	"time"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
)

type Flavor string

const (
	FlavorFuseki     Flavor = "fuseki"
	FlavorGraphDB    Flavor = "graphdb"
	FlavorBlazegraph Flavor = "blazegraph"
)

// RepositoryConfig locates one physical repository. Name is the store-side name;
// the map key in Config.Repositories is the logical name used by the node.
type RepositoryConfig struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	Flavor                Flavor                      `yaml:"flavor"`
	Repositories          map[string]RepositoryConfig `yaml:"repositories"`
	ConnectMaxRetries     int                         `yaml:"connectMaxRetries"`
	ConnectRetryFrequency time.Duration               `yaml:"connectRetryFrequency"`
	InsertRetries         int                         `yaml:"insertRetries"`
	InsertRetryDelay      time.Duration               `yaml:"insertRetryDelay"`
	QueryTimeout          time.Duration               `yaml:"queryTimeout"`
}

func DefaultConfig() Config {
	return Config{
		Flavor:                FlavorFuseki,
		Repositories:          map[string]RepositoryConfig{},
		ConnectMaxRetries:     10,
		ConnectRetryFrequency: 10 * time.Second,
		InsertRetries:         5,
		InsertRetryDelay:      10 * time.Millisecond,
		QueryTimeout:          60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Flavor == "" {
		c.Flavor = d.Flavor
	}
	if c.ConnectMaxRetries <= 0 {
		c.ConnectMaxRetries = d.ConnectMaxRetries
	}
	if c.ConnectRetryFrequency <= 0 {
		c.ConnectRetryFrequency = d.ConnectRetryFrequency
	}
	if c.InsertRetries <= 0 {
		c.InsertRetries = d.InsertRetries
	}
	if c.InsertRetryDelay < 0 {
		c.InsertRetryDelay = d.InsertRetryDelay
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = d.QueryTimeout
	}
	return c
}

func (c Config) Validate() error {
	switch c.Flavor {
	case FlavorFuseki, FlavorGraphDB, FlavorBlazegraph, "":
	default:
		return fmt.Errorf("unknown triple store flavor %q", c.Flavor)
	}
	if len(c.Repositories) == 0 {
		return fmt.Errorf("no triple store repositories configured")
	}
	if _, ok := c.Repositories[knowledge.RepoPublicCurrent]; !ok {
		return fmt.Errorf("repository %q must be configured", knowledge.RepoPublicCurrent)
	}
	for name, r := range c.Repositories {
		if r.URL == "" {
			return fmt.Errorf("repository %q has no url", name)
		}
	}
	return nil
}
