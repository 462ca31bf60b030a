package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./syncctl.db" {
			t.Errorf("expected database path ./syncctl.db, got %s", config.Database.Path)
		}

		if config.Backend.URL != "http://127.0.0.1:8000" {
			t.Errorf("expected backend url http://127.0.0.1:8000, got %s", config.Backend.URL)
		}

		if config.Backend.WSPath != "/ws" {
			t.Errorf("expected ws_path /ws, got %s", config.Backend.WSPath)
		}

		if config.Console.ReconnectDelay != "3s" {
			t.Errorf("expected reconnect_delay 3s, got %s", config.Console.ReconnectDelay)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[backend]
url = "https://runner.lan:9443"

[console]
poll_interval = "5s"

[database]
path = "/custom/path.db"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Backend.WSPath != "/ws" {
			t.Errorf("expected ws_path default to survive partial file, got %q", config.Backend.WSPath)
		}
		if config.Console.FinishGrace != "2s" {
			t.Errorf("expected finish_grace default to survive partial file, got %q", config.Console.FinishGrace)
		}
	})

	t.Run("LoadConfigOrDefault", func(t *testing.T) {
		config := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
		if config.Backend.URL != DefaultConfig().Backend.URL {
			t.Errorf("expected default config for missing file")
		}
	})

	t.Run("Timings", func(t *testing.T) {
		t.Run("defaults", func(t *testing.T) {
			timings, err := DefaultConfig().Timings()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if timings != DefaultTimings() {
				t.Errorf("expected %+v, got %+v", DefaultTimings(), timings)
			}
		})

		t.Run("overrides", func(t *testing.T) {
			config := DefaultConfig()
			config.Console.PollInterval = "10s"
			config.Console.NotifyFade = ""

			timings, err := config.Timings()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if timings.PollInterval != 10*time.Second {
				t.Errorf("expected 10s, got %v", timings.PollInterval)
			}
			if timings.NotifyFade != 300*time.Millisecond {
				t.Errorf("expected empty field to keep default, got %v", timings.NotifyFade)
			}
		})

		t.Run("invalid", func(t *testing.T) {
			tc := []string{"soon", "-1s"}
			for _, raw := range tc {
				config := DefaultConfig()
				config.Console.FinishGrace = raw
				if _, err := config.Timings(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("%q: expected ErrInvalidConfig, got %v", raw, err)
				}
			}
		})
	})

	t.Run("PushURL", func(t *testing.T) {
		tc := []struct {
			name    string
			url     string
			wsPath  string
			want    string
			wantErr bool
		}{
			{name: "http", url: "http://127.0.0.1:8000", wsPath: "/ws", want: "ws://127.0.0.1:8000/ws"},
			{name: "https with base path", url: "https://host/app/", wsPath: "ws", want: "wss://host/app/ws"},
			{name: "empty path", url: "http://host", wsPath: "", want: "ws://host/ws"},
			{name: "bad scheme", url: "ftp://host", wsPath: "/ws", wantErr: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				config.Backend.URL = tt.url
				config.Backend.WSPath = tt.wsPath

				got, err := config.PushURL()
				if tt.wantErr {
					if err == nil {
						t.Fatalf("expected error, got %s", got)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("PushURL() = %s, want %s", got, tt.want)
				}
			})
		}
	})
}
