package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRIAGE_ROSTER_CACHE_TTL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("OPENAI_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Triage.RosterCacheTTL != 5*time.Minute {
		t.Errorf("roster ttl = %v", cfg.Triage.RosterCacheTTL)
	}
	if cfg.Triage.PresenceWindow != 15*time.Minute {
		t.Errorf("presence window = %v", cfg.Triage.PresenceWindow)
	}
	if cfg.Triage.EscalationTokenTTL != 24*time.Hour {
		t.Errorf("token ttl = %v", cfg.Triage.EscalationTokenTTL)
	}
	if cfg.Classifier.Enabled() {
		t.Error("classifier should be disabled without a key")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRIAGE_ROSTER_CACHE_TTL", "90s")
	t.Setenv("OPENAI_KEY", "sk-test")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Triage.RosterCacheTTL != 90*time.Second {
		t.Errorf("roster ttl = %v", cfg.Triage.RosterCacheTTL)
	}
	if !cfg.Classifier.Enabled() {
		t.Error("classifier should pick up OPENAI_KEY")
	}
	if want := []string{"a:9092", "b:9092"}; !reflect.DeepEqual(cfg.Kafka.Brokers, want) {
		t.Errorf("brokers = %v, want %v", cfg.Kafka.Brokers, want)
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric REDIS_DB")
	}
}
