package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Address            string
		Host               string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	databaseConfig struct {
		Engine     string
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	featureStatusConfig struct {
		BaseURL    string
		Endpoint   string
		Token      string
		Timeout    time.Duration
		RootRole   string
		SessionTTL time.Duration
	}

	mailConfig struct {
		DefaultFromEmail string
		OpsEmail         string
		SendgridAPIKey   string
	}

	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string
		RollbarToken string
		Storage      string // postgres | memory

		Server        serverConfig
		Database      databaseConfig
		FeatureStatus featureStatusConfig
		Mail          mailConfig
	}
)

func (c databaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewConfig loads the configuration for the current ENV (DEV by default) from the environment,
// after loading config/.env.<env> if it exists.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Masomo")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("storage", "memory")

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.debugAddress", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "masomo")
	conf.SetDefault("database.user", "postgres")
	conf.SetDefault("database.password", "postgres")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("featureStatus.baseURL", "") // empty: rules evaluated in-process
	conf.SetDefault("featureStatus.endpoint", "/v1/feature-switch/status")
	conf.SetDefault("featureStatus.token", "")
	conf.SetDefault("featureStatus.timeout", 10*time.Second)
	conf.SetDefault("featureStatus.rootRole", "root")
	conf.SetDefault("featureStatus.sessionTTL", 30*time.Minute)

	conf.SetDefault("mail.defaultFromEmail", "noreply@localhost")
	conf.SetDefault("mail.opsEmail", "")
	conf.SetDefault("mail.sendgridApiKey", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		Build:        conf.GetString("build"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		Storage:      strings.ToLower(conf.GetString("storage")),
		Server: serverConfig{
			Address:            conf.GetString("server.address"),
			Host:               conf.GetString("server.host"),
			DebugAddress:       conf.GetString("server.debugAddress"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
		},
		Database: databaseConfig{
			Engine:     conf.GetString("database.engine"),
			Host:       conf.GetString("database.host"),
			Port:       conf.GetInt("database.port"),
			Name:       conf.GetString("database.name"),
			User:       conf.GetString("database.user"),
			Password:   conf.GetString("database.password"),
			DisableTLS: conf.GetBool("database.disableTLS"),
		},
		FeatureStatus: featureStatusConfig{
			BaseURL:    strings.TrimRight(conf.GetString("featureStatus.baseURL"), "/"),
			Endpoint:   conf.GetString("featureStatus.endpoint"),
			Token:      conf.GetString("featureStatus.token"),
			Timeout:    conf.GetDuration("featureStatus.timeout"),
			RootRole:   conf.GetString("featureStatus.rootRole"),
			SessionTTL: conf.GetDuration("featureStatus.sessionTTL"),
		},
		Mail: mailConfig{
			DefaultFromEmail: conf.GetString("mail.defaultFromEmail"),
			OpsEmail:         conf.GetString("mail.opsEmail"),
			SendgridAPIKey:   conf.GetString("mail.sendgridApiKey"),
		},
	}
}
