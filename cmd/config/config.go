// Package config loads the coordinator and worker processes' environment
// configuration, following the teacher's cmd/server/config getEnv/getEnvInt
// pattern.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-derived setting the coordinator and
// worker entrypoints need.
type Config struct {
	PashTop        string
	DishTop        string
	PashTmpPrefix  string
	DspashSocket   string
	HDFSDatanodeDir string

	FTMode             string
	CompletionAddr     string
	DiscoveryURL       string
	RedisURL           string
	NATSURL            string
	Postgres           PostgresConfig
	KillTarget         string
	KillWitnessPath    string
	RemotePipeBasePort int

	AdminAddr string
}

// PostgresConfig holds the audit database's connection parameters.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Load reads Config from the process environment, applying the same
// defaults dspash's shell-side tooling uses where one exists.
func Load() *Config {
	return &Config{
		PashTop:         getEnv("PASH_TOP", "."),
		DishTop:         getEnv("DISH_TOP", "."),
		PashTmpPrefix:   getEnv("PASH_TMP_PREFIX", os.TempDir()),
		DspashSocket:    getEnv("DSPASH_SOCKET", "/tmp/dspash.sock"),
		HDFSDatanodeDir: getEnv("HDFS_DATANODE_DIR", ""),

		FTMode:         getEnv("DSPASH_FT_MODE", "disabled"),
		CompletionAddr: getEnv("DSPASH_COMPLETION_ADDR", ":0"),
		DiscoveryURL:   getEnv("DSPASH_DISCOVERY_URL", "http://localhost:9001"),
		RedisURL:       getEnv("DSPASH_REDIS_URL", "localhost:6379"),
		NATSURL:        getEnv("DSPASH_NATS_URL", "nats://localhost:4222"),
		Postgres: PostgresConfig{
			Host:     getEnv("DSPASH_PG_HOST", "localhost"),
			Port:     getEnvInt("DSPASH_PG_PORT", 5432),
			User:     getEnv("DSPASH_PG_USER", "dspash"),
			Password: getEnv("DSPASH_PG_PASSWORD", "dspash"),
			Database: getEnv("DSPASH_PG_DATABASE", "dspash"),
			SSLMode:  getEnv("DSPASH_PG_SSLMODE", "disable"),
		},
		KillTarget:         getEnv("DSPASH_KILL_TARGET", ""),
		KillWitnessPath:    getEnv("DSPASH_KILL_WITNESS_PATH", ""),
		RemotePipeBasePort: getEnvInt("DSPASH_REMOTE_PIPE_BASE_PORT", 58000),

		AdminAddr: getEnv("DSPASH_ADMIN_ADDR", ":9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
