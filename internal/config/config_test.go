package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
	"github.com/BogBogdan/ot-node/internal/triplestore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
tripleStore:
  flavor: graphdb
  repositories:
    publicCurrent:
      url: http://graphdb:7200
      name: public-current
commands:
  concurrency: 8
  pollInterval: 250ms
assetSync:
  syncParanets:
    - did:dkg:hardhat1:31337:0xabc/1/1
`)
	t.Setenv("PORT", "9100")
	t.Setenv("TRIPLE_STORE_URL", "http://fuseki:3030")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Fatalf("env did not override port: %s", cfg.Server.Port)
	}
	if cfg.TripleStore.Flavor != triplestore.FlavorGraphDB {
		t.Fatalf("flavor=%s", cfg.TripleStore.Flavor)
	}
	if cfg.Commands.Concurrency != 8 || cfg.Commands.PollInterval != 250*time.Millisecond {
		t.Fatalf("commands=%+v", cfg.Commands)
	}
	if got := cfg.TripleStore.Repositories[knowledge.RepoPublicCurrent]; got.URL != "http://graphdb:7200" {
		t.Fatalf("explicit repository replaced: %+v", got)
	}
	if got := cfg.TripleStore.Repositories[knowledge.RepoDKG]; got.URL != "http://fuseki:3030" || got.Name != knowledge.RepoDKG {
		t.Fatalf("dkg repository not filled: %+v", got)
	}
	if p := cfg.Protocol(); len(p.SyncParanets) != 1 || p.NetworkRetries != 3 {
		t.Fatalf("protocol config=%+v", p)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"no repositories", func(c *Config) { c.TripleStore.Repositories = nil }, "no triple store repositories"},
		{"unknown flavor", func(c *Config) { c.TripleStore.Flavor = "virtuoso" }, "unknown triple store flavor"},
		{"zero concurrency", func(c *Config) { c.Commands.Concurrency = 0 }, "commands.concurrency"},
		{"zero retries", func(c *Config) { c.AssetSync.RetriesMax = 0 }, "assetSync.retriesMax"},
		{"bad paranet", func(c *Config) { c.AssetSync.SyncParanets = []string{"nope"} }, "is not a UAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.fillRepositories("http://localhost:3030")
			tc.edit(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate()=%v, want %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
