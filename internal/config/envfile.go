package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads ENV_FILE (default .env) into the environment without
// overriding variables that are already set. A missing default file is fine;
// a missing file named by ENV_FILE is an error.
func LoadEnvFile() error {
	path, explicit := os.LookupEnv("ENV_FILE")
	if !explicit || path == "" {
		explicit = false
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
