// Package config loads application configuration from environment
// variables and optional YAML files into typed structs.
//
// It wraps `github.com/joho/godotenv`, `github.com/caarlos0/env/v11` and
// `gopkg.in/yaml.v3`:
//
//   - Load parses the environment into a struct using `env` tags, after
//     loading the default `.env` file once per process.
//   - LoadFile reads a YAML file first and lets the environment override it.
//   - LoadEnv loads explicit `.env` files.
//   - MustLoad and MustLoadEnv panic on failure for startup code.
//
// # Usage
//
//	type Config struct {
//		APIURL  string        `env:"NOTIFY_API_URL,required" yaml:"api_url"`
//		Timeout time.Duration `env:"NOTIFY_HTTP_TIMEOUT" envDefault:"10s" yaml:"http_timeout"`
//	}
//
//	var cfg Config
//	if err := config.LoadFile(os.Getenv("NOTIFY_CONFIG"), &cfg); err != nil {
//		log.Fatal(err)
//	}
//
// # Precedence
//
// For LoadFile, environment variables win over file values, which win over
// `envDefault` tags. Values loaded from `.env` files never replace variables
// that are already set in the process environment.
//
// # Errors
//
// Parsing failures wrap ErrParsingConfig, unreadable or invalid files wrap
// ErrReadingFile, and a nil destination yields ErrNilPointer.
package config
