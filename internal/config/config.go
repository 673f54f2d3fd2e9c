package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full configuration for one gate node.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Database DatabaseConfig `mapstructure:"database"`
	Devices  DevicesConfig  `mapstructure:"devices"`
	Entry    EntryConfig    `mapstructure:"entry"`
	Exit     ExitConfig     `mapstructure:"exit"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig covers the local HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BackendConfig points at the admin backend that owns tickets and payments.
type BackendConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	OperatorID     string        `mapstructure:"operator_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Uplink         UplinkConfig  `mapstructure:"uplink"`
}

// UplinkConfig configures the auto-reconnecting status WebSocket to the
// backend. Disabled nodes still serve the local status hub.
type UplinkConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URL               string        `mapstructure:"url"`
	Source            string        `mapstructure:"source"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectWait  time.Duration `mapstructure:"max_reconnect_wait"`
}

// DatabaseConfig selects the local store used for failed-sync jobs and
// the device event log.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DevicesConfig holds one section per physical device class.
type DevicesConfig struct {
	EntryGate  GateDeviceConfig    `mapstructure:"entry_gate"`
	ExitGate   GateDeviceConfig    `mapstructure:"exit_gate"`
	Camera     CameraConfig        `mapstructure:"camera"`
	ExitCamera CameraConfig        `mapstructure:"exit_camera"`
	Printer    SerialDeviceConfig  `mapstructure:"printer"`
	Scanner    SerialDeviceConfig  `mapstructure:"scanner"`
	Trigger    TriggerDeviceConfig `mapstructure:"trigger"`
}

// SerialDeviceConfig is the common shape for serial peripherals.
type SerialDeviceConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GateDeviceConfig configures one gate motor lane.
type GateDeviceConfig struct {
	SerialDeviceConfig `mapstructure:",squash"`
	AutoCloseDelay     time.Duration `mapstructure:"auto_close_delay"`
}

// CameraConfig configures an IP camera snapshot source.
type CameraConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	SnapshotURL string        `mapstructure:"snapshot_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TriggerDeviceConfig configures the GPIO vehicle-present input.
type TriggerDeviceConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Pin          int           `mapstructure:"pin"`
	ActiveLow    bool          `mapstructure:"active_low"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DebounceTime time.Duration `mapstructure:"debounce_time"`
}

// EntryConfig tunes the entry workflow.
type EntryConfig struct {
	WorkflowTimeout time.Duration `mapstructure:"workflow_timeout"`
	VehicleType     string        `mapstructure:"vehicle_type"`
}

// ExitConfig tunes the exit workflow.
type ExitConfig struct {
	PaymentMethod string        `mapstructure:"payment_method"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

// OCRConfig selects the plate recognition engine.
type OCRConfig struct {
	Engine   string        `mapstructure:"engine"` // remote | command
	Language string        `mapstructure:"language"`
	Command  string        `mapstructure:"command"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RatesConfig is the tiered fee table keyed by vehicle type.
type RatesConfig struct {
	Currency string              `mapstructure:"currency"`
	Vehicles map[string]RateTier `mapstructure:"vehicles"`
}

// RateTier holds the three mutually exclusive pricing tiers.
type RateTier struct {
	Hourly int64 `mapstructure:"hourly"`
	Daily  int64 `mapstructure:"daily"`
	Weekly int64 `mapstructure:"weekly"`
}

// SyncConfig tunes the failed-sync replay worker.
type SyncConfig struct {
	ReplayInterval time.Duration `mapstructure:"replay_interval"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// LogConfig mirrors the zap/lumberjack setup.
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig configures file rotation.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init loads configuration from file, environment and defaults.
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("PARKIR")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// run on defaults when no config file is present
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}

		err = Validate(cfg)
	})

	return err
}

// Validate rejects configurations the controllers cannot run with.
func Validate(c *Config) error {
	if c.Devices.Trigger.DebounceTime <= 0 {
		return fmt.Errorf("devices.trigger.debounce_time must be positive")
	}
	if c.Devices.Trigger.PollInterval <= 0 {
		return fmt.Errorf("devices.trigger.poll_interval must be positive")
	}
	if c.Entry.WorkflowTimeout <= 0 {
		return fmt.Errorf("entry.workflow_timeout must be positive")
	}
	switch c.OCR.Engine {
	case "remote", "command":
	default:
		return fmt.Errorf("ocr.engine must be remote or command, got %q", c.OCR.Engine)
	}
	for vehicle, tier := range c.Rates.Vehicles {
		if tier.Hourly < 0 || tier.Daily < 0 || tier.Weekly < 0 {
			return fmt.Errorf("rates.vehicles.%s: negative rate", vehicle)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("backend.server_url", "http://localhost:3000")
	v.SetDefault("backend.operator_id", "OP-001")
	v.SetDefault("backend.request_timeout", "10s")
	v.SetDefault("backend.uplink.enabled", false)
	v.SetDefault("backend.uplink.source", "gate-node-1")
	v.SetDefault("backend.uplink.reconnect_interval", "1s")
	v.SetDefault("backend.uplink.max_reconnect_wait", "30s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/gate-node.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("devices.entry_gate.port", "/dev/ttyUSB0")
	v.SetDefault("devices.entry_gate.baud_rate", 9600)
	v.SetDefault("devices.entry_gate.write_timeout", "500ms")
	v.SetDefault("devices.entry_gate.auto_close_delay", "5s")
	v.SetDefault("devices.exit_gate.port", "/dev/ttyUSB1")
	v.SetDefault("devices.exit_gate.baud_rate", 9600)
	v.SetDefault("devices.exit_gate.write_timeout", "500ms")
	v.SetDefault("devices.exit_gate.auto_close_delay", "5s")

	v.SetDefault("devices.camera.timeout", "5s")
	v.SetDefault("devices.exit_camera.timeout", "5s")

	v.SetDefault("devices.printer.port", "/dev/ttyUSB2")
	v.SetDefault("devices.printer.baud_rate", 19200)
	v.SetDefault("devices.printer.write_timeout", "2s")

	v.SetDefault("devices.scanner.port", "/dev/ttyUSB3")
	v.SetDefault("devices.scanner.baud_rate", 9600)
	v.SetDefault("devices.scanner.read_timeout", "200ms")

	v.SetDefault("devices.trigger.pin", 17)
	v.SetDefault("devices.trigger.active_low", true)
	v.SetDefault("devices.trigger.poll_interval", "100ms")
	v.SetDefault("devices.trigger.debounce_time", "1s")

	v.SetDefault("entry.workflow_timeout", "30s")
	v.SetDefault("entry.vehicle_type", "car")

	v.SetDefault("exit.payment_method", "cash")
	v.SetDefault("exit.session_ttl", "2m")

	v.SetDefault("ocr.engine", "remote")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.command", "tesseract")
	v.SetDefault("ocr.timeout", "10s")

	v.SetDefault("rates.currency", "IDR")
	v.SetDefault("rates.vehicles.car.hourly", 5000)
	v.SetDefault("rates.vehicles.car.daily", 40000)
	v.SetDefault("rates.vehicles.car.weekly", 200000)
	v.SetDefault("rates.vehicles.motorcycle.hourly", 2000)
	v.SetDefault("rates.vehicles.motorcycle.daily", 15000)
	v.SetDefault("rates.vehicles.motorcycle.weekly", 75000)

	v.SetDefault("sync.replay_interval", "30s")
	v.SetDefault("sync.max_backoff", "10m")
	v.SetDefault("sync.batch_size", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "gate-node.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Get returns the active configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch reloads the configuration when the file changes. Only the safe
// subset (log level, rate table) is expected to take effect live; device
// ports require a restart.
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("config reload failed: %v\n", err)
			return
		}
		if err := Validate(newCfg); err != nil {
			fmt.Printf("config reload rejected: %v\n", err)
			return
		}

		cfg = newCfg
		if callback != nil {
			callback(cfg)
		}
	})
}

// GetString reads a raw string value.
func GetString(key string) string {
	return v.GetString(key)
}

// GetDuration reads a raw duration value.
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet reports whether a key is configured.
func IsSet(key string) bool {
	return v.IsSet(key)
}
