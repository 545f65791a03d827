package session_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/llamachat/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()

	if cfg.SystemPrompt != session.DefaultSystemPrompt {
		t.Errorf("got SystemPrompt %q, want the default prompt", cfg.SystemPrompt)
	}
	if cfg.Manual || cfg.Special || cfg.Plain || cfg.DisplayPrompt {
		t.Errorf("default flags should be off, got %+v", cfg)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := session.DefaultConfig()
	source := session.Config{
		SystemPrompt:  "Be brief.",
		Manual:        true,
		DisplayPrompt: true,
		Special:       true,
		Plain:         true,
	}

	cfg.Merge(&source)

	if diff := cmp.Diff(source, cfg); diff != "" {
		t.Errorf("merged config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Merge_EmptyPreservesValues(t *testing.T) {
	cfg := session.Config{SystemPrompt: "original", Manual: true}

	cfg.Merge(&session.Config{})

	if cfg.SystemPrompt != "original" || !cfg.Manual {
		t.Errorf("empty merge changed config: %+v", cfg)
	}
}
