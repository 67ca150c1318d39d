// Package config reads runtime settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/matthewbaird/rentledger/internal/policy"
)

const (
	DefaultDatabaseURL = "file:rentledger.db?_pragma=foreign_keys(1)"
	DefaultPort        = 8080
	DefaultEventBuffer = 256
)

// Config holds the settings shared by the server and the CLI.
type Config struct {
	DatabaseURL string
	Port        int
	// PolicyFile is an optional CUE file that overrides the shipped late-fee policy.
	PolicyFile  string
	EventBuffer int
}

// Load reads .env files (if present) into the process environment and then
// builds a Config from it. Variables already set win over .env values.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
		if len(envFiles) > 0 {
			log.Printf("config: %v", err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a lookup function shaped like
// os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{
		DatabaseURL: DefaultDatabaseURL,
		Port:        DefaultPort,
		EventBuffer: DefaultEventBuffer,
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.DatabaseURL = v
	}
	if v, ok := lookup("RENT_POLICY_FILE"); ok {
		cfg.PolicyFile = v
	}
	var err error
	if cfg.Port, err = intVar(lookup, "PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.EventBuffer, err = intVar(lookup, "EVENT_BUFFER", cfg.EventBuffer); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func intVar(lookup func(string) (string, bool), name string, def int) (int, error) {
	v, ok := lookup(name)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, v)
	}
	return n, nil
}

// Policy returns the late-fee policy: the file named by PolicyFile, or the
// shipped default when none is set.
func (c Config) Policy() (policy.Policy, error) {
	return policy.Load(c.PolicyFile)
}
