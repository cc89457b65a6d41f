package config

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.WindowHours() != 24 {
		t.Fatalf("window = %d, want 24", cfg.WindowHours())
	}
	if len(cfg.Phrases.Qualifying) == 0 {
		t.Fatalf("default config has no qualifying phrases")
	}
}

func TestFromYAMLRejectsMissingCategory(t *testing.T) {
	yaml := `
board:
  categories:
    makeup:
      status_field: status_makeup
proposals:
  window_hours: 24
`
	_, err := FromYAML([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "hair") {
		t.Fatalf("err = %v, want missing hair category", err)
	}
}

func TestFromYAMLRejectsBadWindow(t *testing.T) {
	yaml := `
board:
  categories:
    makeup:
      status_field: status_makeup
    hair:
      status_field: status_hair
proposals:
  window_hours: 0
`
	_, err := FromYAML([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "window_hours") {
		t.Fatalf("err = %v, want window_hours error", err)
	}
}

func TestWebhookOn(t *testing.T) {
	off := false
	cases := []struct {
		w    WebhookConfig
		want bool
	}{
		{WebhookConfig{}, false},
		{WebhookConfig{URL: "https://example.com/hook"}, true},
		{WebhookConfig{URL: "https://example.com/hook", Enabled: &off}, false},
	}
	for i, c := range cases {
		if c.w.On() != c.want {
			t.Fatalf("case %d: On() = %v, want %v", i, c.w.On(), c.want)
		}
	}
}
