package typesetd

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds daemon configuration, sourced from the environment with
// optional .env support.
type Config struct {
	Addr          string
	ModulePath    string
	FontDir       string
	MemoryLimitMB int
	Environment   string
}

// LoadConfig reads configuration from the environment. A missing .env
// file is not an error.
func LoadConfig() Config {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	return Config{
		Addr:          getEnv("TYPESETD_ADDR", ":8787"),
		ModulePath:    getEnv("TYPESETD_MODULE", "./compiler/compiler.js"),
		FontDir:       getEnv("TYPESETD_FONT_DIR", ""),
		MemoryLimitMB: getEnvInt("TYPESETD_MEMORY_LIMIT_MB", 512),
		Environment:   getEnv("ENVIRONMENT", "production"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
