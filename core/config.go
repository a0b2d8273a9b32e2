package core

import (
	"fmt"
	"log"
	"net"
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
		Env              string
		AppName          string
		Build            string
		Debug            bool
		TestMode         bool
		LogLevel         string
		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		defaultFromEmail string

		Server   ServerConfig
		Identity IdentityConfig
		Database DatabaseConfig
		Paging   PagingConfig
	}

	ServerConfig struct {
		Address            string
		Host               string
		SessionIdleTimeout time.Duration
		SignInRate         float64 // sign-in attempts per second per client
		SignInBurst        int
	}

	// IdentityConfig describes how tokens issued by the identity provider are verified.
	IdentityConfig struct {
		SigningKey string
		Issuer     string
		TokenTTL   time.Duration
	}

	DatabaseConfig struct {
		Engine        string // dummy | postgres
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	PagingConfig struct {
		DefaultPageSize int
		MaxPageSize     int
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
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

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Sekolah")
	v.SetDefault("build", "dev")
	v.SetDefault("logLevel", "info")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.sessionIdleTimeout", 30*time.Minute)
	v.SetDefault("server.signInRate", 1.0)
	v.SetDefault("server.signInBurst", 5)

	v.SetDefault("identity.signingKey", "k9#v2qz$w+1mx=8d7^ht0(pn)a!s6e4r")
	v.SetDefault("identity.issuer", "")
	v.SetDefault("identity.tokenTTL", time.Hour)

	v.SetDefault("database.engine", "dummy")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "sekolah")
	v.SetDefault("database.user", "sekolah")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("paging.defaultPageSize", 10)
	v.SetDefault("paging.maxPageSize", 100)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		LogLevel:         v.GetString("logLevel"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			Host:               v.GetString("server.host"),
			SessionIdleTimeout: v.GetDuration("server.sessionIdleTimeout"),
			SignInRate:         v.GetFloat64("server.signInRate"),
			SignInBurst:        v.GetInt("server.signInBurst"),
		},
		Identity: IdentityConfig{
			SigningKey: v.GetString("identity.signingKey"),
			Issuer:     v.GetString("identity.issuer"),
			TokenTTL:   v.GetDuration("identity.tokenTTL"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Paging: PagingConfig{
			DefaultPageSize: v.GetInt("paging.defaultPageSize"),
			MaxPageSize:     v.GetInt("paging.maxPageSize"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: dummy database, no external services.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		AppName:          "Sekolah",
		Build:            "test",
		TestMode:         true,
		LogLevel:         "error",
		defaultFromEmail: "noreply@localhost",
		Server: ServerConfig{
			Address:            ":0",
			Host:               "localhost",
			SessionIdleTimeout: time.Minute,
			SignInRate:         100,
			SignInBurst:        100,
		},
		Identity: IdentityConfig{
			SigningKey: "secret",
			TokenTTL:   time.Hour,
		},
		Database: DatabaseConfig{Engine: "dummy"},
		Paging:   PagingConfig{DefaultPageSize: 10, MaxPageSize: 100},
	}
}

func (conf *Config) String() string {
	return fmt.Sprintf("%s(%s) env=%s db=%s", conf.AppName, conf.Build, conf.Env, conf.Database.Engine)
}
