package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// AppConfig App option object
type AppConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout" yaml:"session_timeout"`
	SessionRefresh time.Duration `mapstructure:"session_refresh" json:"session_refresh" yaml:"session_refresh"` // session refresh threshold
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	Database       struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=mysql postgres"`          // driver name
		Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required"`                            // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                      // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password" validate:"required"`                       // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"` // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                             // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema" validate:"required"`                      // use schema
		User     string `mapstructure:"username" json:"username" yaml:"username" validate:"required"`                // db username
	} `mapstructure:"database" json:"database" yaml:"database"`
	Logging struct {
		FilePath   string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
		Level      string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
		MaxSize    int    `mapstructure:"max_size" json:"max_size" yaml:"max_size"`                               // megabytes before rotation
		MaxBackups int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
		MaxAge     int    `mapstructure:"max_age" json:"max_age" yaml:"max_age"` // days
	} `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength         int           `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=8"` // length of generated ID for entities
		JWTMethod        string        `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS512"`
		JWTSecret        string        `mapstructure:"jwt_secret" json:"-" yaml:"jwt_secret" validate:"required"`
		TokenName        string        `mapstructure:"token_name" json:"token_name" yaml:"token_name" validate:"required"`     // jwt token name set in cookie
		MaxLoginAttempts int           `mapstructure:"max_login_attempts" json:"max_login_attempts" yaml:"max_login_attempts"` // maximum login attempts
		RetryTimeout     time.Duration `mapstructure:"retry_timeout" json:"retry_timeout" yaml:"retry_timeout"`                // retry wait
		AllowedOrigins   []string      `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`          // extra origins allowed to open sockets
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore struct {
		Host     string `mapstructure:"host" json:"host" yaml:"host"`                         // bind host address
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                         // bind listen port
		Password string `mapstructure:"password" json:"-" yaml:"password" validate:"required"` // password for security reasons
	} `mapstructure:"kv" json:"kv" yaml:"kv"`
	Progression struct {
		WatchThreshold   float64       `mapstructure:"watch_threshold" json:"watch_threshold" yaml:"watch_threshold" validate:"gt=0,lte=100"` // percent of a video to be watched
		DwellTime        time.Duration `mapstructure:"dwell_time" json:"dwell_time" yaml:"dwell_time" validate:"gt=0"`                      // residency on a document lesson
		UnlockRule       string        `mapstructure:"unlock_rule" json:"unlock_rule" yaml:"unlock_rule" validate:"oneof=completed any"`
		SessionIdle      time.Duration `mapstructure:"session_idle" json:"session_idle" yaml:"session_idle" validate:"gt=0"`                // unused sessions are dropped after it
		EvictionSchedule string        `mapstructure:"eviction_schedule" json:"eviction_schedule" yaml:"eviction_schedule" validate:"required"`
	} `mapstructure:"progression" json:"progression" yaml:"progression"`
	Cache struct {
		ProgressTTL time.Duration `mapstructure:"progress_ttl" json:"progress_ttl" yaml:"progress_ttl"` // 0 disables the snapshot cache
	} `mapstructure:"cache" json:"cache" yaml:"cache"`
	DevOP struct {
		APM     bool `mapstructure:"apm" json:"apm" yaml:"apm"`
		Metrics bool `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	} `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitConfig init app config using viper
func InitConfig() (*AppConfig, error) {
	// app
	pflag.String("host", "", "binding address")
	pflag.String("app_id", "", "application identifier (required)")
	pflag.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	pflag.Int("port", 8081, "listening port")
	pflag.Duration("session_timeout", 30*time.Minute, "JWT lifetime(m, s and h units are supported), eg.30m")
	pflag.Duration("session_refresh", 5*time.Minute, "session refresh threshold(m, s and h units are supported), eg.5m")
	pflag.Duration("request_timeout", 30*time.Second, "maximum duration of a request")

	// database
	pflag.String("database.driver", "mysql", "database driver to use, can be 'mysql' or 'postgres'")
	pflag.String("database.host", "127.0.0.1", "database host")
	pflag.Int("database.port", 3306, "database server port")
	pflag.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	pflag.String("database.username", "", "database username (required)")
	pflag.String("database.password", "", "database password (required)")
	pflag.String("database.schema", "", "database schema (required)")
	pflag.String("database.query", "", `additional DSN query parameters('?' is auto prefixed), if you work with mysql
"parseTime=true" is needed to scan progress timestamps`)
	pflag.Int32("database.maxconn", 200, `max connection count, if you encounter a "too many connections" error, please consider
increasing the max_connection value of your db server, or lower this value`)

	// logging
	pflag.String("logging.level", "info", "logging level")
	pflag.String("logging.file_path", "", "log to file")
	pflag.Int("logging.max_size", 100, "maximum size in megabytes of the log file before it gets rotated")
	pflag.Int("logging.max_backups", 3, "maximum number of old log files to retain")
	pflag.Int("logging.max_age", 28, "maximum number of days to retain old log files")

	// security
	pflag.Int("security.id_length", 24, "set length of generated ID for entities")
	pflag.String("security.jwt_method", "HS256", "hash algorithm used for JWT auth")
	pflag.String("security.jwt_secret", "", "JWT secret (required)")
	pflag.String("security.token_name", "", "cookie name to store the token (required)")
	pflag.Int("security.max_login_attempts", 3, "maximum login attempts")
	pflag.Duration("security.retry_timeout", 1*time.Hour, "retry wait")
	pflag.StringSlice("security.allowed_origins", nil, "origins besides the serving host allowed to open websockets, eg.https://app.example.com")

	// kv storage
	pflag.String("kv.host", "127.0.0.1", "kv host")
	pflag.Int("kv.port", 6379, "kv server port")
	pflag.String("kv.password", "", "kv server password (required)")

	// progression
	pflag.Float64("progression.watch_threshold", 97, "percent of a video that must be watched to complete the lesson")
	pflag.Duration("progression.dwell_time", 30*time.Second, "time a document lesson must stay open to complete it")
	pflag.String("progression.unlock_rule", "completed", `what the previous lesson needs for the next one to unlock,
'completed' or 'any' (any progress record)`)
	pflag.Duration("progression.session_idle", 30*time.Minute, "drop lesson view sessions unused for this long")
	pflag.String("progression.eviction_schedule", "@every 1m", "cron expression of the idle session sweep")

	// cache
	pflag.Duration("cache.progress_ttl", 5*time.Minute, "lifetime of cached progress snapshots, 0 to disable")

	// DevOp
	pflag.Bool("devop.apm", false, "enable apm metrics")
	pflag.Bool("devop.metrics", false, "expose prometheus metrics on /metrics")

	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config = new(AppConfig)
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if config.Logging.Level == "debug" {
		if configJSON, err := json.MarshalIndent(config, "", "  "); err == nil {
			log.Printf("App config: %s\n", string(configJSON))
		}
	}
	return config, nil
}

func validateConfig(config *AppConfig) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			return ""
		}
		return name
	})
	err := validate.Struct(config)
	if _, ok := err.(*validator.InvalidValidationError); ok {
		log.Fatalf("Failed to validate config: %s", err)
	}
	if err == nil {
		return nil
	}

	var msg []string
	for _, field := range err.(validator.ValidationErrors) {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		default:
			msg = append(msg, fmt.Sprintf("%s failed on '%s=%s'", fieldName, field.Tag(), field.Param()))
		}
	}
	return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
}
