package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Speed tiers accepted by the "speed" key.
const (
	SpeedLow  = "low"
	SpeedMid  = "mid"
	SpeedHigh = "high"
)

// TuningConfig represents the root configuration for regulator and decoder
// tuning. The schema matches the /api/tuning endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// LOD regulator params
	AutomaticLODAdjust *bool    `json:"automatic_lod_adjust,omitempty"`
	PIDKp              *float64 `json:"pid_kp,omitempty"`
	PIDKi              *float64 `json:"pid_ki,omitempty"`
	PIDKd              *float64 `json:"pid_kd,omitempty"`
	PIDKv              *float64 `json:"pid_kv,omitempty"`
	SmoothScale        *float64 `json:"smooth_scale,omitempty"`
	DesktopTargetFPS   *float64 `json:"desktop_target_fps,omitempty"`
	HMDTargetFPS       *float64 `json:"hmd_target_fps,omitempty"`
	AdjustInterval     *string  `json:"adjust_interval,omitempty"` // duration string like "16ms"
	TraceCapacity      *int     `json:"trace_capacity,omitempty"`

	// 3D mouse params
	Speed           *string  `json:"speed,omitempty"` // low, mid or high
	PanZoom         *bool    `json:"pan_zoom,omitempty"`
	Rotate          *bool    `json:"rotate,omitempty"`
	TimeToLive      *int     `json:"time_to_live,omitempty"`
	LinearScale     *float64 `json:"linear_scale,omitempty"`
	AngularScale    *float64 `json:"angular_scale,omitempty"`
	MaxAxisTick     *float64 `json:"max_axis_tick,omitempty"`
	HotplugInterval *string  `json:"hotplug_interval,omitempty"` // duration string like "1s"
}

// LODTuning is the resolved regulator configuration with defaults applied.
type LODTuning struct {
	AutomaticLODAdjust bool
	Kp, Ki, Kd, Kv     float64
	SmoothScale        float64
	DesktopTargetFPS   float64
	HMDTargetFPS       float64
}

// ConnexionTuning is the resolved 3D mouse configuration with defaults applied.
type ConnexionTuning struct {
	Speed        string
	PanZoom      bool
	Rotate       bool
	TimeToLive   int
	LinearScale  float64
	AngularScale float64
	MaxAxisTick  float64
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the Get* defaults.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		AutomaticLODAdjust: ptrBool(empty.GetAutomaticLODAdjust()),
		PIDKp:              ptrFloat64(empty.GetPIDKp()),
		PIDKi:              ptrFloat64(empty.GetPIDKi()),
		PIDKd:              ptrFloat64(empty.GetPIDKd()),
		PIDKv:              ptrFloat64(empty.GetPIDKv()),
		SmoothScale:        ptrFloat64(empty.GetSmoothScale()),
		DesktopTargetFPS:   ptrFloat64(empty.GetDesktopTargetFPS()),
		HMDTargetFPS:       ptrFloat64(empty.GetHMDTargetFPS()),
		AdjustInterval:     ptrString(empty.GetAdjustInterval().String()),
		TraceCapacity:      ptrInt(empty.GetTraceCapacity()),
		Speed:              ptrString(empty.GetSpeed()),
		PanZoom:            ptrBool(empty.GetPanZoom()),
		Rotate:             ptrBool(empty.GetRotate()),
		TimeToLive:         ptrInt(empty.GetTimeToLive()),
		LinearScale:        ptrFloat64(empty.GetLinearScale()),
		AngularScale:       ptrFloat64(empty.GetAngularScale()),
		MaxAxisTick:        ptrFloat64(empty.GetMaxAxisTick()),
		HotplugInterval:    ptrString(empty.GetHotplugInterval().String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to their defaults, so partial
// configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseTuningConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTuningConfig parses and validates a JSON tuning document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"desktop_target_fps": c.DesktopTargetFPS,
		"hmd_target_fps":     c.HMDTargetFPS,
	} {
		if v != nil && *v < 0.5 {
			return fmt.Errorf("%s must be at least 0.5, got %f", name, *v)
		}
	}

	if c.SmoothScale != nil && *c.SmoothScale < 1 {
		return fmt.Errorf("smooth_scale must be at least 1, got %f", *c.SmoothScale)
	}

	if c.PIDKv != nil && *c.PIDKv < 0 {
		return fmt.Errorf("pid_kv must be non-negative, got %f", *c.PIDKv)
	}

	if c.AdjustInterval != nil && *c.AdjustInterval != "" {
		d, err := time.ParseDuration(*c.AdjustInterval)
		if err != nil {
			return fmt.Errorf("invalid adjust_interval '%s': %w", *c.AdjustInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("adjust_interval must be positive, got %s", d)
		}
	}

	if c.HotplugInterval != nil && *c.HotplugInterval != "" {
		if _, err := time.ParseDuration(*c.HotplugInterval); err != nil {
			return fmt.Errorf("invalid hotplug_interval '%s': %w", *c.HotplugInterval, err)
		}
	}

	if c.TraceCapacity != nil && *c.TraceCapacity < 1 {
		return fmt.Errorf("trace_capacity must be positive, got %d", *c.TraceCapacity)
	}

	if c.Speed != nil {
		switch strings.ToLower(*c.Speed) {
		case SpeedLow, SpeedMid, SpeedHigh:
		default:
			return fmt.Errorf("unsupported speed %q: expected low, mid or high", *c.Speed)
		}
	}

	if c.TimeToLive != nil && *c.TimeToLive < 1 {
		return fmt.Errorf("time_to_live must be at least 1, got %d", *c.TimeToLive)
	}

	for name, v := range map[string]*float64{
		"linear_scale":  c.LinearScale,
		"angular_scale": c.AngularScale,
		"max_axis_tick": c.MaxAxisTick,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	return nil
}

// LOD resolves the regulator section.
func (c *TuningConfig) LOD() LODTuning {
	return LODTuning{
		AutomaticLODAdjust: c.GetAutomaticLODAdjust(),
		Kp:                 c.GetPIDKp(),
		Ki:                 c.GetPIDKi(),
		Kd:                 c.GetPIDKd(),
		Kv:                 c.GetPIDKv(),
		SmoothScale:        c.GetSmoothScale(),
		DesktopTargetFPS:   c.GetDesktopTargetFPS(),
		HMDTargetFPS:       c.GetHMDTargetFPS(),
	}
}

// Connexion resolves the 3D mouse section.
func (c *TuningConfig) Connexion() ConnexionTuning {
	return ConnexionTuning{
		Speed:        c.GetSpeed(),
		PanZoom:      c.GetPanZoom(),
		Rotate:       c.GetRotate(),
		TimeToLive:   c.GetTimeToLive(),
		LinearScale:  c.GetLinearScale(),
		AngularScale: c.GetAngularScale(),
		MaxAxisTick:  c.GetMaxAxisTick(),
	}
}

// GetAutomaticLODAdjust returns the automatic_lod_adjust value or the default.
func (c *TuningConfig) GetAutomaticLODAdjust() bool {
	if c.AutomaticLODAdjust == nil {
		return true
	}
	return *c.AutomaticLODAdjust
}

// GetPIDKp returns the pid_kp value or the default.
func (c *TuningConfig) GetPIDKp() float64 {
	if c.PIDKp == nil {
		return 1.0
	}
	return *c.PIDKp
}

// GetPIDKi returns the pid_ki value or the default.
func (c *TuningConfig) GetPIDKi() float64 {
	if c.PIDKi == nil {
		return 0.0
	}
	return *c.PIDKi
}

// GetPIDKd returns the pid_kd value or the default.
func (c *TuningConfig) GetPIDKd() float64 {
	if c.PIDKd == nil {
		return 0.0
	}
	return *c.PIDKd
}

// GetPIDKv returns the pid_kv value or the default.
func (c *TuningConfig) GetPIDKv() float64 {
	if c.PIDKv == nil {
		return 1.0
	}
	return *c.PIDKv
}

// GetSmoothScale returns the smooth_scale value or the default.
func (c *TuningConfig) GetSmoothScale() float64 {
	if c.SmoothScale == nil {
		return 6.0
	}
	return *c.SmoothScale
}

// GetDesktopTargetFPS returns the desktop_target_fps value or the default
// (world detail quality 0.2 on a 60 Hz display).
func (c *TuningConfig) GetDesktopTargetFPS() float64 {
	if c.DesktopTargetFPS == nil {
		return 28.0
	}
	return *c.DesktopTargetFPS
}

// GetHMDTargetFPS returns the hmd_target_fps value or the default
// (world detail quality 0.2 on a 90 Hz headset).
func (c *TuningConfig) GetHMDTargetFPS() float64 {
	if c.HMDTargetFPS == nil {
		return 34.0
	}
	return *c.HMDTargetFPS
}

// GetAdjustInterval parses and returns the AdjustInterval as a time.Duration.
func (c *TuningConfig) GetAdjustInterval() time.Duration {
	if c.AdjustInterval == nil || *c.AdjustInterval == "" {
		return 16 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.AdjustInterval)
	if err != nil || d <= 0 {
		return 16 * time.Millisecond
	}
	return d
}

// GetTraceCapacity returns the trace_capacity value or the default.
func (c *TuningConfig) GetTraceCapacity() int {
	if c.TraceCapacity == nil {
		return 3600 // one minute at 60 Hz
	}
	return *c.TraceCapacity
}

// GetSpeed returns the lower-cased speed tier or the default.
func (c *TuningConfig) GetSpeed() string {
	if c.Speed == nil {
		return SpeedMid
	}
	return strings.ToLower(*c.Speed)
}

// GetPanZoom returns the pan_zoom value or the default.
func (c *TuningConfig) GetPanZoom() bool {
	if c.PanZoom == nil {
		return true
	}
	return *c.PanZoom
}

// GetRotate returns the rotate value or the default.
func (c *TuningConfig) GetRotate() bool {
	if c.Rotate == nil {
		return true
	}
	return *c.Rotate
}

// GetTimeToLive returns the time_to_live value or the default.
func (c *TuningConfig) GetTimeToLive() int {
	if c.TimeToLive == nil {
		return 5
	}
	return *c.TimeToLive
}

// GetLinearScale returns the linear_scale value or the default.
// Full deflection of a 3D mouse reports about 350 counts.
func (c *TuningConfig) GetLinearScale() float64 {
	if c.LinearScale == nil {
		return 1.0 / 350.0
	}
	return *c.LinearScale
}

// GetAngularScale returns the angular_scale value or the default.
func (c *TuningConfig) GetAngularScale() float64 {
	if c.AngularScale == nil {
		return 1.0 / 350.0
	}
	return *c.AngularScale
}

// GetMaxAxisTick returns the max_axis_tick value or the default: the
// displacement of a fully deflected axis over one 16 ms frame.
func (c *TuningConfig) GetMaxAxisTick() float64 {
	if c.MaxAxisTick == nil {
		return 16.0
	}
	return *c.MaxAxisTick
}

// GetHotplugInterval parses and returns the HotplugInterval as a time.Duration.
func (c *TuningConfig) GetHotplugInterval() time.Duration {
	if c.HotplugInterval == nil || *c.HotplugInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.HotplugInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
