package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		defaultFromEmail string

		PasswordResetTimeout time.Duration

		Admin    AdminConfig
		Server   ServerConfig
		Database DatabaseConfig
		Storage  StorageConfig
		Jobs     JobsConfig
		Log      LogConfig
	}

	// AdminConfig holds the static shared-secret admin login.
	AdminConfig struct {
		Email    string
		Password string
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		SessionTTL         time.Duration
		SessionRefreshTTL  time.Duration
		AdminSessionTTL    time.Duration
		SecureCookies      bool
		DisableRequestLogs bool
		MaxUploadSize      int64
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	StorageConfig struct {
		Backend  string // local | oss | memory
		LocalDir string
		OSS      OSSConfig
	}

	OSSConfig struct {
		Endpoint        string
		AccessKeyID     string
		AccessKeySecret string
		Bucket          string
	}

	JobsConfig struct {
		OverdueSweep    bool
		OverdueSchedule string
	}

	LogConfig struct {
		Level string
	}
)

func (dbc DatabaseConfig) Address() string {
	if dbc.Port == "" {
		return dbc.Host
	}
	return dbc.Host + ":" + dbc.Port
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

// NewConfig loads the configuration from the environment, after loading `config/.env.<env>` if it exists.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	setDefaults(v, env)
	v.AutomaticEnv()

	return &Config{
		AppName:          v.GetString("app_name"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("test_mode"),
		SecretKey:        v.GetString("secret_key"),
		FrontendBaseURL:  v.GetString("frontend_base_url"),
		RollbarToken:     v.GetString("rollbar_token"),
		SendgridApiKey:   v.GetString("sendgrid_api_key"),
		defaultFromEmail: v.GetString("default_from_email"),

		PasswordResetTimeout: v.GetDuration("password_reset_timeout"),
		Admin: AdminConfig{
			Email:    CleanString(v.GetString("admin.email"), true /* lower */),
			Password: v.GetString("admin.password"),
		},
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugHost:          v.GetString("server.debug_host"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			SessionTTL:         v.GetDuration("server.session_ttl"),
			SessionRefreshTTL:  v.GetDuration("server.session_refresh_ttl"),
			AdminSessionTTL:    v.GetDuration("server.admin_session_ttl"),
			SecureCookies:      v.GetBool("server.secure_cookies"),
			DisableRequestLogs: v.GetBool("server.disable_request_logs"),
			MaxUploadSize:      v.GetInt64("server.max_upload_size"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.admin_user"),
			AdminPassword: v.GetString("database.admin_password"),
			DisableTLS:    v.GetBool("database.disable_tls"),
		},
		Storage: StorageConfig{
			Backend:  v.GetString("storage.backend"),
			LocalDir: v.GetString("storage.local_dir"),
			OSS: OSSConfig{
				Endpoint:        v.GetString("storage.oss.endpoint"),
				AccessKeyID:     v.GetString("storage.oss.access_key_id"),
				AccessKeySecret: v.GetString("storage.oss.access_key_secret"),
				Bucket:          v.GetString("storage.oss.bucket"),
			},
		},
		Jobs: JobsConfig{
			OverdueSweep:    v.GetBool("jobs.overdue_sweep"),
			OverdueSchedule: v.GetString("jobs.overdue_schedule"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("app_name", "Escola")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("secret_key", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontend_base_url", "http://localhost:8080")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("password_reset_timeout", 3*24*time.Hour)

	v.SetDefault("admin.email", "admin@escola.com")
	v.SetDefault("admin.password", "admin")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug_host", ":4000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.session_ttl", 12*time.Hour)
	v.SetDefault("server.session_refresh_ttl", 7*24*time.Hour)
	v.SetDefault("server.admin_session_ttl", time.Hour)
	v.SetDefault("server.secure_cookies", env == "PROD")
	v.SetDefault("server.disable_request_logs", false)
	v.SetDefault("server.max_upload_size", int64(10<<20))

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "escola")
	v.SetDefault("database.user", "escola")
	v.SetDefault("database.password", "")
	v.SetDefault("database.admin_user", "postgres")
	v.SetDefault("database.admin_password", "")
	v.SetDefault("database.disable_tls", env == "DEV" || env == "TEST")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "uploads")

	v.SetDefault("jobs.overdue_sweep", false)
	v.SetDefault("jobs.overdue_schedule", "@daily")

	v.SetDefault("log.level", "info")
}
