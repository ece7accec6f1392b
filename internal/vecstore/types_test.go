package vecstore

import (
	"testing"
	"time"
)

func TestBuildSearchConfig_Defaults(t *testing.T) {
	cfg := buildSearchConfig(nil)

	if cfg.topK != DefaultTopK {
		t.Errorf("topK = %d, want %d", cfg.topK, DefaultTopK)
	}
	if cfg.filter != nil {
		t.Errorf("filter = %v, want nil", cfg.filter)
	}
	if cfg.timeout != 10*time.Second {
		t.Errorf("timeout = %s, want 10s", cfg.timeout)
	}
}

func TestBuildSearchConfig_Options(t *testing.T) {
	cfg := buildSearchConfig([]SearchOption{
		WithTopK(3),
		WithFilter("jurisdiction", "EU"),
		WithFilter("policy_name", "aml"),
		WithTimeout(2 * time.Second),
	})

	if cfg.topK != 3 {
		t.Errorf("topK = %d, want 3", cfg.topK)
	}
	if len(cfg.filter) != 2 || cfg.filter["jurisdiction"] != "EU" || cfg.filter["policy_name"] != "aml" {
		t.Errorf("filter = %v, want both filters applied", cfg.filter)
	}
	if cfg.timeout != 2*time.Second {
		t.Errorf("timeout = %s, want 2s", cfg.timeout)
	}
}
