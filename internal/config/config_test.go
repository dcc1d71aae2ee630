package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"TAPPBX_DATA_DIR", "TAPPBX_HTTP_PORT", "TAPPBX_TRANSPORT",
		"TAPPBX_SWITCH_HOSTS", "TAPPBX_SOCKET_ADDR", "TAPPBX_BROKER_URL",
		"TAPPBX_FIREWALL_STORE", "TAPPBX_CACHE", "TAPPBX_LOG_LEVEL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"tappbx"}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.Transport != defaultTransport {
		t.Errorf("Transport = %q, want %q", cfg.Transport, defaultTransport)
	}
	if cfg.CacheBackend != defaultCacheBackend {
		t.Errorf("CacheBackend = %q, want %q", cfg.CacheBackend, defaultCacheBackend)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"tappbx"}
	t.Setenv("TAPPBX_HTTP_PORT", "9090")
	t.Setenv("TAPPBX_TRANSPORT", "broker")
	t.Setenv("TAPPBX_SWITCH_HOSTS", "fs1, fs2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.Transport != "broker" {
		t.Errorf("Transport = %q, want %q", cfg.Transport, "broker")
	}
	hosts := cfg.Hosts()
	if len(hosts) != 2 || hosts[0] != "fs1" || hosts[1] != "fs2" {
		t.Errorf("Hosts() = %v, want [fs1 fs2]", hosts)
	}
}

func TestInvalidTransport(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"tappbx", "-transport", "carrier-pigeon"}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid transport, got nil")
	}
}

func TestTLSCertRequiresKey(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"tappbx", "-tls-cert", "/etc/ssl/pbx.crt"}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for tls-cert without tls-key, got nil")
	}
}

func TestRedirectPortRequiresTLS(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"tappbx", "-redirect-port", "8080"}

	if _, err := Load(); err == nil {
		t.Fatal("expected error for redirect-port without TLS, got nil")
	}
}

func TestPostgresFirewallStoreRequiresDSN(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"tappbx", "-firewall-store", "postgres"}

	if _, err := Load(); err == nil {
		t.Fatal("expected error when firewall-store is postgres without a DSN")
	}
}
