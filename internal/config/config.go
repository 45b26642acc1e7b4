// Package config loads cascade daemon configuration from a YAML file,
// environment variables, and built-in defaults, in that priority
// order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the daemon needs at startup.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Cascade  CascadeConfig  `mapstructure:"cascade"`
	Color    ColorConfig    `mapstructure:"color"`
	Presets  PresetsConfig  `mapstructure:"presets"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig contains the HTTP/WebSocket control API settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// CascadeConfig describes the physical wiring of the TLC5947 cascade:
// which SPI bus/device and GPIO pins drive it, and the tick rate.
type CascadeConfig struct {
	DryRun     bool `mapstructure:"dry_run"`
	SPIBus     int  `mapstructure:"spi_bus"`
	SPIDevice  int  `mapstructure:"spi_device"`
	XlatPin    int  `mapstructure:"xlat_pin"`
	BlankPin   int  `mapstructure:"blank_pin"`
	TickHz     int  `mapstructure:"tick_hz"`
	IDMap      [8]int `mapstructure:"id_map"`
}

// ColorConfig holds the startup white balance and gamut matrix. Both
// can be changed at runtime through the control API; these are just
// the values loaded at boot.
type ColorConfig struct {
	WhiteBalance [3]float64    `mapstructure:"white_balance"`
	Gamut        [3][3]float64 `mapstructure:"gamut"`
}

// PresetsConfig controls the named-pattern preset store.
type PresetsConfig struct {
	DBPath    string `mapstructure:"db_path"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Region  string `mapstructure:"s3_region"`
	S3Prefix  string `mapstructure:"s3_prefix"`
}

// MQTTConfig controls the optional remote-control transport.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	CommandTopic string `mapstructure:"command_topic"`
	StatusTopic  string `mapstructure:"status_topic"`
}

// SerialConfig controls the optional debug console transport.
type SerialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
}

// LoggerConfig contains structured logging settings.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from configPath (if non-empty) or the
// usual search locations, falling back to defaults for anything
// unset. Environment variables prefixed LEDCASCADE_ override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ledcascade")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config: %w", err)
		}
	}

	v.SetEnvPrefix("LEDCASCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("cascade.dry_run", true)
	v.SetDefault("cascade.spi_bus", 0)
	v.SetDefault("cascade.spi_device", 0)
	v.SetDefault("cascade.xlat_pin", 23)
	v.SetDefault("cascade.blank_pin", 24)
	v.SetDefault("cascade.tick_hz", 100)
	v.SetDefault("cascade.id_map", []int{0, 1, 2, 3, 4, 5, 6, 7})

	v.SetDefault("color.white_balance", []float64{1, 1, 1})
	v.SetDefault("color.gamut", [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})

	v.SetDefault("presets.db_path", "./data/presets.db")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "ledcascade")
	v.SetDefault("mqtt.command_topic", "ledcascade/command")
	v.SetDefault("mqtt.status_topic", "ledcascade/status")

	v.SetDefault("serial.enabled", false)
	v.SetDefault("serial.baud_rate", 115200)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.filename", "cascade.log")
	v.SetDefault("logger.max_size_mb", 20)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 30)
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".ledcascade")
}
