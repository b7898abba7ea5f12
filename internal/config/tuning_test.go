package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.PIDKp == nil || *cfg.PIDKp != 1.0 {
		t.Errorf("Expected PIDKp 1.0, got %v", cfg.PIDKp)
	}
	if cfg.PIDKv == nil || *cfg.PIDKv != 1.0 {
		t.Errorf("Expected PIDKv 1.0, got %v", cfg.PIDKv)
	}
	if cfg.SmoothScale == nil || *cfg.SmoothScale != 6.0 {
		t.Errorf("Expected SmoothScale 6.0, got %v", cfg.SmoothScale)
	}
	if cfg.AdjustInterval == nil || *cfg.AdjustInterval != "16ms" {
		t.Errorf("Expected AdjustInterval '16ms', got %v", cfg.AdjustInterval)
	}
	if cfg.Speed == nil || *cfg.Speed != SpeedMid {
		t.Errorf("Expected Speed 'mid', got %v", cfg.Speed)
	}
	if cfg.TimeToLive == nil || *cfg.TimeToLive != 5 {
		t.Errorf("Expected TimeToLive 5, got %v", cfg.TimeToLive)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultTuningConfig().Validate() = %v", err)
	}

	lod := cfg.LOD()
	if !lod.AutomaticLODAdjust || lod.Ki != 0 || lod.Kd != 0 {
		t.Errorf("unexpected LOD tuning %+v", lod)
	}
	if lod.DesktopTargetFPS != 28 || lod.HMDTargetFPS != 34 {
		t.Errorf("target fps = %v/%v, want 28/34", lod.DesktopTargetFPS, lod.HMDTargetFPS)
	}

	cx := cfg.Connexion()
	if !cx.PanZoom || !cx.Rotate || cx.MaxAxisTick != 16 {
		t.Errorf("unexpected connexion tuning %+v", cx)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Partial config: omitted fields keep their defaults
	testJSON := `{
  "pid_kp": 0.5,
  "pid_ki": 0.1,
  "smooth_scale": 4,
  "adjust_interval": "11ms",
  "speed": "HIGH",
  "rotate": false
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetPIDKp() != 0.5 {
		t.Errorf("GetPIDKp() = %f, want 0.5", cfg.GetPIDKp())
	}
	if cfg.GetPIDKi() != 0.1 {
		t.Errorf("GetPIDKi() = %f, want 0.1", cfg.GetPIDKi())
	}
	if cfg.GetSmoothScale() != 4 {
		t.Errorf("GetSmoothScale() = %f, want 4", cfg.GetSmoothScale())
	}
	if cfg.GetAdjustInterval() != 11*time.Millisecond {
		t.Errorf("GetAdjustInterval() = %v, want 11ms", cfg.GetAdjustInterval())
	}
	if cfg.GetSpeed() != SpeedHigh {
		t.Errorf("GetSpeed() = %q, want high", cfg.GetSpeed())
	}
	if cfg.GetRotate() {
		t.Error("GetRotate() = true, want false")
	}
	if !cfg.GetPanZoom() {
		t.Error("GetPanZoom() = false, want default true")
	}
	if cfg.GetPIDKv() != 1.0 {
		t.Errorf("GetPIDKv() = %f, want default 1.0", cfg.GetPIDKv())
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("tuning.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"low fps", write("fps.json", `{"hmd_target_fps": 0.1}`), "hmd_target_fps"},
		{"smooth scale", write("smooth.json", `{"smooth_scale": 0.5}`), "smooth_scale"},
		{"bad interval", write("interval.json", `{"adjust_interval": "soon"}`), "adjust_interval"},
		{"bad speed", write("speed.json", `{"speed": "ludicrous"}`), "unsupported speed"},
		{"zero ttl", write("ttl.json", `{"time_to_live": 0}`), "time_to_live"},
		{"negative scale", write("scale.json", `{"linear_scale": -1}`), "linear_scale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	p := filepath.Join(t.TempDir(), "huge.json")
	if err := os.WriteFile(p, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	want := DefaultTuningConfig()

	if cfg.GetPIDKp() != want.GetPIDKp() {
		t.Errorf("defaults file pid_kp = %f, code default %f", cfg.GetPIDKp(), want.GetPIDKp())
	}
	if cfg.GetDesktopTargetFPS() != want.GetDesktopTargetFPS() {
		t.Errorf("defaults file desktop_target_fps = %f, code default %f", cfg.GetDesktopTargetFPS(), want.GetDesktopTargetFPS())
	}
	if cfg.GetHotplugInterval() != want.GetHotplugInterval() {
		t.Errorf("defaults file hotplug_interval = %v, code default %v", cfg.GetHotplugInterval(), want.GetHotplugInterval())
	}
	if cfg.GetTraceCapacity() != want.GetTraceCapacity() {
		t.Errorf("defaults file trace_capacity = %d, code default %d", cfg.GetTraceCapacity(), want.GetTraceCapacity())
	}
}

func TestGetIntervalsFallBack(t *testing.T) {
	bad := "nope"
	cfg := &TuningConfig{AdjustInterval: &bad, HotplugInterval: &bad}
	if cfg.GetAdjustInterval() != 16*time.Millisecond {
		t.Errorf("GetAdjustInterval() = %v, want 16ms", cfg.GetAdjustInterval())
	}
	if cfg.GetHotplugInterval() != time.Second {
		t.Errorf("GetHotplugInterval() = %v, want 1s", cfg.GetHotplugInterval())
	}
}
