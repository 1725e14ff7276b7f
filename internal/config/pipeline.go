package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Camera sources understood by GetCameraSource.
const (
	SourceFFmpeg = "ffmpeg"
	SourceImages = "images"
	SourceGoCV   = "gocv"
)

// PipelineConfig is the startup configuration for the perception pipeline.
// Every field is optional; the Get* methods supply defaults for anything the
// JSON file omits, so partial configs are safe.
type PipelineConfig struct {
	// Frame source
	CameraSource *string `json:"camera_source,omitempty"` // ffmpeg | images | gocv
	CameraDevice *string `json:"camera_device,omitempty"`
	CameraWidth  *int    `json:"camera_width,omitempty"`
	CameraHeight *int    `json:"camera_height,omitempty"`
	CameraFPS    *int    `json:"camera_fps,omitempty"`
	ImageDir     *string `json:"image_dir,omitempty"` // replay directory for the images source

	// Detector
	HSVLower   *[3]int `json:"hsv_lower,omitempty"`
	HSVUpper   *[3]int `json:"hsv_upper,omitempty"`
	KernelSize *int    `json:"kernel_size,omitempty"`

	// Estimator
	CalibrationPath *string  `json:"calibration_path,omitempty"` // .csv file or "sqlite" to read from DBPath
	ToleranceStart  *float64 `json:"tolerance_start,omitempty"`
	ToleranceMax    *float64 `json:"tolerance_max,omitempty"`
	ToleranceStep   *float64 `json:"tolerance_step,omitempty"`
	CertaintyBase   *float64 `json:"certainty_base,omitempty"`

	// Publisher
	PublishInterval *string `json:"publish_interval,omitempty"` // duration string like "10ms"
	GRPCListen      *string `json:"grpc_listen,omitempty"`      // empty disables the gRPC sink
	SerialPort      *string `json:"serial_port,omitempty"`      // empty disables the serial sink
	SerialBaud      *int    `json:"serial_baud,omitempty"`
	SerialParity    *string `json:"serial_parity,omitempty"`

	// Storage
	DBPath         *string `json:"db_path,omitempty"` // empty disables the run log
	RecordDefaults *bool   `json:"record_defaults,omitempty"`

	// Operator monitoring stream
	StreamFPS *int `json:"stream_fps,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrTriple(v [3]int) *[3]int    { return &v }

// DefaultPipelineConfig returns a config with every field populated with
// the same values the getters fall back to.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		CameraSource:    ptrString(SourceFFmpeg),
		CameraDevice:    ptrString("/dev/video0"),
		CameraWidth:     ptrInt(1280),
		CameraHeight:    ptrInt(720),
		CameraFPS:       ptrInt(120),
		ImageDir:        ptrString("testdata/frames"),
		HSVLower:        ptrTriple([3]int{9, 35, 0}),
		HSVUpper:        ptrTriple([3]int{31, 255, 255}),
		KernelSize:      ptrInt(7),
		CalibrationPath: ptrString("Data/2024-Note/FullData.csv"),
		ToleranceStart:  ptrFloat64(25),
		ToleranceMax:    ptrFloat64(40),
		ToleranceStep:   ptrFloat64(3),
		CertaintyBase:   ptrFloat64(50),
		PublishInterval: ptrString("10ms"),
		GRPCListen:      ptrString("0.0.0.0:50061"),
		SerialPort:      ptrString(""),
		SerialBaud:      ptrInt(115200),
		SerialParity:    ptrString("N"),
		DBPath:          ptrString(""),
		RecordDefaults:  ptrBool(false),
		StreamFPS:       ptrInt(15),
	}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
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

	cfg := &PipelineConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *PipelineConfig) Validate() error {
	switch c.GetCameraSource() {
	case SourceFFmpeg, SourceImages, SourceGoCV:
	default:
		return fmt.Errorf("camera_source must be one of %q, %q, %q; got %q",
			SourceFFmpeg, SourceImages, SourceGoCV, c.GetCameraSource())
	}

	if c.GetCameraWidth() <= 0 || c.GetCameraHeight() <= 0 {
		return fmt.Errorf("camera resolution must be positive, got %dx%d", c.GetCameraWidth(), c.GetCameraHeight())
	}
	if c.GetCameraFPS() <= 0 {
		return fmt.Errorf("camera_fps must be positive, got %d", c.GetCameraFPS())
	}

	lower, upper := c.GetHSVLower(), c.GetHSVUpper()
	limits := [3]int{179, 255, 255}
	for i := range lower {
		if lower[i] < 0 || lower[i] > limits[i] || upper[i] < 0 || upper[i] > limits[i] {
			return fmt.Errorf("hsv channel %d out of range [0, %d]: lower=%d upper=%d", i, limits[i], lower[i], upper[i])
		}
		if lower[i] > upper[i] {
			return fmt.Errorf("hsv channel %d: lower %d exceeds upper %d", i, lower[i], upper[i])
		}
	}

	if k := c.GetKernelSize(); k < 1 || k%2 == 0 {
		return fmt.Errorf("kernel_size must be a positive odd number, got %d", k)
	}

	if c.GetToleranceStep() <= 0 {
		return fmt.Errorf("tolerance_step must be positive, got %g", c.GetToleranceStep())
	}
	if c.GetToleranceStart() < 0 || c.GetToleranceStart() > c.GetToleranceMax() {
		return fmt.Errorf("tolerance_start must be in [0, tolerance_max]; got start=%g max=%g",
			c.GetToleranceStart(), c.GetToleranceMax())
	}

	if c.PublishInterval != nil && *c.PublishInterval != "" {
		d, err := time.ParseDuration(*c.PublishInterval)
		if err != nil {
			return fmt.Errorf("invalid publish_interval '%s': %w", *c.PublishInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("publish_interval must be positive, got %s", d)
		}
	}

	if c.GetStreamFPS() <= 0 {
		return fmt.Errorf("stream_fps must be positive, got %d", c.GetStreamFPS())
	}

	return nil
}

// GetCameraSource returns the camera_source value or the default.
func (c *PipelineConfig) GetCameraSource() string {
	if c.CameraSource == nil || *c.CameraSource == "" {
		return SourceFFmpeg
	}
	return *c.CameraSource
}

// GetCameraDevice returns the camera_device value or the default.
func (c *PipelineConfig) GetCameraDevice() string {
	if c.CameraDevice == nil || *c.CameraDevice == "" {
		return "/dev/video0"
	}
	return *c.CameraDevice
}

// GetCameraWidth returns the camera_width value or the default.
func (c *PipelineConfig) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 1280
	}
	return *c.CameraWidth
}

// GetCameraHeight returns the camera_height value or the default.
func (c *PipelineConfig) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 720
	}
	return *c.CameraHeight
}

// GetCameraFPS returns the camera_fps value or the default.
func (c *PipelineConfig) GetCameraFPS() int {
	if c.CameraFPS == nil {
		return 120
	}
	return *c.CameraFPS
}

// GetImageDir returns the image_dir value or the default.
func (c *PipelineConfig) GetImageDir() string {
	if c.ImageDir == nil || *c.ImageDir == "" {
		return "testdata/frames"
	}
	return *c.ImageDir
}

// GetHSVLower returns the hsv_lower value or the default.
func (c *PipelineConfig) GetHSVLower() [3]int {
	if c.HSVLower == nil {
		return [3]int{9, 35, 0}
	}
	return *c.HSVLower
}

// GetHSVUpper returns the hsv_upper value or the default.
func (c *PipelineConfig) GetHSVUpper() [3]int {
	if c.HSVUpper == nil {
		return [3]int{31, 255, 255}
	}
	return *c.HSVUpper
}

// GetKernelSize returns the kernel_size value or the default.
func (c *PipelineConfig) GetKernelSize() int {
	if c.KernelSize == nil {
		return 7
	}
	return *c.KernelSize
}

// GetCalibrationPath returns the calibration_path value or the default.
func (c *PipelineConfig) GetCalibrationPath() string {
	if c.CalibrationPath == nil || *c.CalibrationPath == "" {
		return "Data/2024-Note/FullData.csv"
	}
	return *c.CalibrationPath
}

// GetToleranceStart returns the tolerance_start value or the default.
func (c *PipelineConfig) GetToleranceStart() float64 {
	if c.ToleranceStart == nil {
		return 25
	}
	return *c.ToleranceStart
}

// GetToleranceMax returns the tolerance_max value or the default.
func (c *PipelineConfig) GetToleranceMax() float64 {
	if c.ToleranceMax == nil {
		return 40
	}
	return *c.ToleranceMax
}

// GetToleranceStep returns the tolerance_step value or the default.
func (c *PipelineConfig) GetToleranceStep() float64 {
	if c.ToleranceStep == nil {
		return 3
	}
	return *c.ToleranceStep
}

// GetCertaintyBase returns the certainty_base value or the default.
func (c *PipelineConfig) GetCertaintyBase() float64 {
	if c.CertaintyBase == nil {
		return 50
	}
	return *c.CertaintyBase
}

// GetPublishInterval parses and returns the PublishInterval as a time.Duration.
func (c *PipelineConfig) GetPublishInterval() time.Duration {
	if c.PublishInterval == nil || *c.PublishInterval == "" {
		return 10 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.PublishInterval)
	if err != nil || d <= 0 {
		return 10 * time.Millisecond // default on parse error
	}
	return d
}

// GetGRPCListen returns the grpc_listen value; empty disables the gRPC sink.
func (c *PipelineConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return "0.0.0.0:50061"
	}
	return *c.GRPCListen
}

// GetSerialPort returns the serial_port value; empty disables the serial sink.
func (c *PipelineConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerialBaud returns the serial_baud value or the default.
func (c *PipelineConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 115200
	}
	return *c.SerialBaud
}

// GetSerialParity returns the serial_parity value or the default.
func (c *PipelineConfig) GetSerialParity() string {
	if c.SerialParity == nil || *c.SerialParity == "" {
		return "N"
	}
	return *c.SerialParity
}

// GetDBPath returns the db_path value; empty disables the run log.
func (c *PipelineConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetRecordDefaults returns the record_defaults value or the default.
func (c *PipelineConfig) GetRecordDefaults() bool {
	if c.RecordDefaults == nil {
		return false
	}
	return *c.RecordDefaults
}

// GetStreamFPS returns the stream_fps value or the default.
func (c *PipelineConfig) GetStreamFPS() int {
	if c.StreamFPS == nil {
		return 15
	}
	return *c.StreamFPS
}
