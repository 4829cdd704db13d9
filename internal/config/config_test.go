package config

import (
	"strings"
	"testing"
	"time"

	"proof-host/internal/types"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9090
proof_request:
  network: taiko_mainnet
  proof_type: sgx
  prover: "0x0000000000000000000000000000000000000abc"
aggregation_images:
  risc0: "0xr0"
  sp1: "0xsp1"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("server section %+v", cfg.Server)
	}
	if cfg.Database.Driver != "memory" {
		t.Fatalf("default driver %q", cfg.Database.Driver)
	}
	if cfg.Actor.ChannelCapacity != 1024 || cfg.Actor.EnqueueTimeout() != 5*time.Second {
		t.Fatalf("actor section %+v", cfg.Actor)
	}
	if cfg.ProofRequest.ProofType == nil || *cfg.ProofRequest.ProofType != "sgx" {
		t.Fatal("proof_request defaults not decoded")
	}
	images := cfg.ImageDefaults()
	if images[types.ProofTypeRisc0] != "0xr0" || images[types.ProofTypeSp1] != "0xsp1" {
		t.Fatalf("image table %v", images)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://proof@localhost/proofs")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("PROOF_HOST_PAUSED", "true")
	t.Setenv("SP1_PROVER_URL", "http://sp1:8080")
	t.Setenv("TAIKO_MAINNET_RPC_ENDPOINTS", "http://a,http://b")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example, ")

	cfg, err := Parse([]byte(`
networks:
  taiko_mainnet:
    chainId: 167000
    enabled: true
    rpcEndpoints: ["http://old"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN == "" {
		t.Fatalf("database %+v", cfg.Database)
	}
	if cfg.Server.Port != 7000 || !cfg.Paused {
		t.Fatalf("server/paused not overridden: %+v paused=%v", cfg.Server, cfg.Paused)
	}
	if sp1 := cfg.Provers["sp1"]; !sp1.Enabled || sp1.BaseURL != "http://sp1:8080" {
		t.Fatalf("sp1 prover %+v", sp1)
	}
	network := cfg.Networks["taiko_mainnet"]
	if len(network.RPCEndpoints) != 2 || network.RPCEndpoints[1] != "http://b" {
		t.Fatalf("rpc endpoints %v", network.RPCEndpoints)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Fatalf("cors origins %v", cfg.CORS.AllowedOrigins)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"postgres without dsn", "database:\n  driver: postgres\n", "database.dsn"},
		{"unknown driver", "database:\n  driver: mysql\n", "unsupported database driver"},
		{"unknown prover", "provers:\n  groth16:\n    enabled: true\n", "provers.groth16"},
		{"remote prover without url", "provers:\n  risc0:\n    enabled: true\n", "baseUrl"},
		{"network without rpc", "networks:\n  l1:\n    enabled: true\n", "rpcEndpoints"},
		{"zero capacity", "actor:\n  channel_capacity: 0\n", "channel_capacity"},
		{"bad log format", "log:\n  format: xml\n", "log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
