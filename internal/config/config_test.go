package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("server port default missing")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("postgres url default missing")
	}
	if cfg.CaptureMinDistanceM != 100 || cfg.CaptureMinTimeSec != 30 {
		t.Fatalf("unexpected capture thresholds: %v / %v", cfg.CaptureMinDistanceM, cfg.CaptureMinTimeSec)
	}
	if cfg.GPSMaxSpeedMps <= 0 || cfg.GPSMaxAccuracyM <= 0 {
		t.Fatalf("gps cleaning defaults missing")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CAPTURE_MIN_DISTANCE_M", "250")
	t.Setenv("SERVER_PORT", ":9999")

	cfg := Load()
	if cfg.CaptureMinDistanceM != 250 {
		t.Fatalf("env override not applied: %v", cfg.CaptureMinDistanceM)
	}
	if cfg.ServerPort != ":9999" {
		t.Fatalf("env override not applied: %v", cfg.ServerPort)
	}
}
