package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var defaultEnvLoaded sync.Once

// Load parses environment variables into v based on its `env` tags.
// The .env file in the working directory, if present, is loaded once per
// process before the first parse. Variables already set in the environment
// win over the file.
//
// Example:
//
//	type Config struct {
//		APIURL string        `env:"NOTIFY_API_URL,required"`
//		Timeout time.Duration `env:"NOTIFY_HTTP_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The file is optional.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// LoadFile layers configuration sources with increasing precedence:
// `envDefault` tags, then the YAML file at path, then environment variables.
// Required variables must still come from the environment.
// An empty path behaves like Load.
func LoadFile[T any](path string, v *T) error {
	if err := Load(v); err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrReadingFile, err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrReadingFile, fmt.Errorf("%s: %w", path, err))
	}

	// Second pass without defaults so file values are only replaced by
	// variables that are actually set.
	if err := env.ParseWithOptions(v, env.Options{DefaultValueTagName: noDefaultTag}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

const noDefaultTag = "envDefaultUnused"

// LoadEnv loads the given .env files into the process environment.
// Earlier files take precedence over later ones, and existing variables
// are never overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		return godotenv.Load()
	}
	return godotenv.Load(paths...)
}

// MustLoadEnv works like LoadEnv but panics on error.
func MustLoadEnv(paths ...string) {
	if err := LoadEnv(paths...); err != nil {
		panic(fmt.Sprintf("failed to load env files: %v", err))
	}
}
