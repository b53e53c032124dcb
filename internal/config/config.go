package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const EnvironmentProduction = "production"

type Application struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	Environment string   `koanf:"environment"`
	Ledger      Ledger   `koanf:"ledger"`
	Database    Database `koanf:"db"`
}

// Ledger controls how budget mutations are persisted.
type Ledger struct {
	// Mode is one of "auto", "transactional" or "fallback". "auto" probes the database on startup.
	Mode string `koanf:"mode"`
	// TxRetries is the number of attempts made when a transaction fails with a serialization error.
	TxRetries int `koanf:"txretries"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

func (a Application) IsProduction() bool {
	return strings.EqualFold(a.Environment, EnvironmentProduction)
}

func Defaults() Application {
	return Application{
		Host:        "0.0.0.0",
		Port:        8181,
		Environment: "development",
		Ledger: Ledger{
			Mode:      "auto",
			TxRetries: 3,
		},
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "pocket",
			Pass:   "",
			Name:   "pocket",
			Schema: "pocket",
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "POCKET_",
		TransformFunc: func(k, v string) (string, any) {
			// POCKET_DB_HOST -> db.host
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "POCKET_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
