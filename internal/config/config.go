package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/linkdrop/linkdrop/internal/duration"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	BaseURL          string        `mapstructure:"base-url"`
	GracefulShutdown time.Duration `mapstructure:"graceful-shutdown"`
	ReadTimeout      time.Duration `mapstructure:"read-timeout"`
	WriteTimeout     time.Duration `mapstructure:"write-timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DBConfig struct {
	DataSource  string `mapstructure:"data-source"`
	PrepareStmt bool   `mapstructure:"prepare-stmt"`
	LogLevel    string `mapstructure:"log-level"`
}

type CacheConfig struct {
	MaxSize   int    `mapstructure:"max-size"`
	RedisAddr string `mapstructure:"redis-addr"`
	RedisPass string `mapstructure:"redis-pass"`
}

type StorageConfig struct {
	Root string `mapstructure:"root"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// LinkConfig drives the temporary download link lifecycle.
type LinkConfig struct {
	TempDir         string        `mapstructure:"temp-dir"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup-interval"`
	MaxActive       int64         `mapstructure:"max-active"`
	TokenSize       int           `mapstructure:"token-size"`
	VerifyOnStart   bool          `mapstructure:"verify-on-start"`
	CleanOnStart    bool          `mapstructure:"clean-on-start"`
}

type RateDimension struct {
	Enable   bool          `mapstructure:"enable"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enable     bool          `mapstructure:"enable"`
	IP         RateDimension `mapstructure:"ip"`
	User       RateDimension `mapstructure:"user"`
	Validation RateDimension `mapstructure:"validation"`
}

type ServerCmdConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LoggingConfig   `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Link      LinkConfig      `mapstructure:"link"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ConfigLoader struct {
	v *viper.Viper
}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		v: viper.New(),
	}
}

func StringToDurationHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		str, ok := data.(string)
		if !ok {
			return data, nil
		}
		return duration.ParseDuration(str)
	}
}

func (cl *ConfigLoader) InitializeConfig(cmd *cobra.Command) error {
	cl.v.SetConfigType("toml")

	cfgFile := cmd.Flags().Lookup("config").Value.String()

	if cfgFile != "" {
		cl.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error getting home directory: %v", err)
		}
		cl.v.AddConfigPath(filepath.Join(home, ".linkdrop"))
		cl.v.AddConfigPath(".")
		cl.v.SetConfigName("config")
	}

	cl.v.SetEnvPrefix("linkdrop")
	cl.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	cl.v.AutomaticEnv()

	if err := cl.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	if err := cl.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %v", err)
		}
	}

	return nil
}

func (cl *ConfigLoader) Load(cfg interface{}) error {
	config := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			StringToDurationHook(),
		),
		WeaklyTypedInput: true,
		Result:           cfg,
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}

	if err := decoder.Decode(cl.v.AllSettings()); err != nil {
		return fmt.Errorf("failed to decode config: %v", err)
	}

	return nil
}

func AddCommonFlags(flags *pflag.FlagSet, config *ServerCmdConfig) {

	flags.StringP("config", "c", "", "Config file path (default $HOME/.linkdrop/config.toml)")

	// Log config
	flags.StringVar(&config.Log.Level, "log-level", zapcore.InfoLevel.String(), "Logging level")
	flags.StringVar(&config.Log.File, "log-file", "", "Logging file path")

	// DB config
	flags.StringVar(&config.DB.DataSource, "db-data-source", "linkdrop.db", "SQLite database path")
	flags.StringVar(&config.DB.LogLevel, "db-log-level", zapcore.WarnLevel.String(), "Database log level")
	flags.BoolVar(&config.DB.PrepareStmt, "db-prepare-stmt", true, "Enable prepared statements")

	// Cache config
	flags.IntVar(&config.Cache.MaxSize, "cache-max-size", 10*1024*1024, "Max memory cache size in bytes")
	flags.StringVar(&config.Cache.RedisAddr, "cache-redis-addr", "", "Redis address")
	flags.StringVar(&config.Cache.RedisPass, "cache-redis-pass", "", "Redis password")

	// Storage config
	flags.StringVar(&config.Storage.Root, "storage-root", "", "Root directory of the managed file tree")

	// JWT config
	flags.StringVar(&config.JWT.Secret, "jwt-secret", "", "Secret for bearer token verification")

	// Link config
	flags.StringVar(&config.Link.TempDir, "link-temp-dir", "", "Directory for temporary hard links")
	duration.DurationVar(flags, &config.Link.TTL, "link-ttl", 30*time.Minute, "Lifetime of a download link")
	duration.DurationVar(flags, &config.Link.CleanupInterval, "link-cleanup-interval", 5*time.Minute, "Interval between cleanup passes")
	flags.Int64Var(&config.Link.MaxActive, "link-max-active", 1000, "Max concurrently active links")
	flags.IntVar(&config.Link.TokenSize, "link-token-size", 32, "Random bytes per link token")
	flags.BoolVar(&config.Link.VerifyOnStart, "link-verify-on-start", true, "Verify hard link support on startup")
	flags.BoolVar(&config.Link.CleanOnStart, "link-clean-on-start", true, "Sweep orphaned links on startup")

	// Rate limit config
	flags.BoolVar(&config.RateLimit.Enable, "ratelimit-enable", true, "Enable download rate limiting")
	flags.BoolVar(&config.RateLimit.IP.Enable, "ratelimit-ip-enable", true, "Rate limit downloads per IP")
	flags.IntVar(&config.RateLimit.IP.Requests, "ratelimit-ip-requests", 60, "Downloads per IP per window")
	duration.DurationVar(flags, &config.RateLimit.IP.Window, "ratelimit-ip-window", time.Minute, "Per IP window")
	flags.BoolVar(&config.RateLimit.User.Enable, "ratelimit-user-enable", true, "Rate limit downloads per user")
	flags.IntVar(&config.RateLimit.User.Requests, "ratelimit-user-requests", 120, "Downloads per user per window")
	duration.DurationVar(flags, &config.RateLimit.User.Window, "ratelimit-user-window", time.Minute, "Per user window")
	flags.BoolVar(&config.RateLimit.Validation.Enable, "ratelimit-validation-enable", true, "Rate limit token validation attempts")
	flags.IntVar(&config.RateLimit.Validation.Requests, "ratelimit-validation-requests", 30, "Validation attempts per window")
	duration.DurationVar(flags, &config.RateLimit.Validation.Window, "ratelimit-validation-window", time.Minute, "Validation window")
}
