package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadEnv reads a .env file and returns a map of key-value pairs.
// It ignores comments (starting with #) and empty lines.
func LoadEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove inline comments
		if idx := strings.Index(value, " #"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		env[key] = value
	}

	return env, scanner.Err()
}

// ApplyEnvOverrides updates the configuration based on environment variables.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	// OpenRouter
	if val, ok := env["OPENROUTER_API_KEY"]; ok {
		cfg.OpenRouter.APIKey = val
	}
	if val, ok := env["OPENROUTER_BASE_URL"]; ok {
		cfg.OpenRouter.BaseURL = val
	}
	if val, ok := env["OPENROUTER_HTTP_REFERER"]; ok {
		cfg.OpenRouter.HTTPReferer = val
	}
	if val, ok := env["OPENROUTER_APP_TITLE"]; ok {
		cfg.OpenRouter.AppTitle = val
	}
	if val, ok := env["OPENROUTER_TIMEOUT"]; ok {
		if seconds, err := strconv.Atoi(val); err == nil {
			cfg.OpenRouter.Timeout = time.Duration(seconds) * time.Second
		} else if duration, err := time.ParseDuration(val); err == nil {
			cfg.OpenRouter.Timeout = duration
		}
	}

	// Server
	if val, ok := env["SERVER_PORT"]; ok {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	// Queue
	if val, ok := env["QUEUE_WORKERS"]; ok {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			cfg.Queue.Workers = workers
		}
	}

	// Storage
	if val, ok := env["DATABASE_PATH"]; ok {
		cfg.Storage.Path = val
	}

	// Defaults
	if val, ok := env["DEFAULT_LANGUAGE"]; ok {
		cfg.Defaults.Language = val
	}
	if val, ok := env["DEFAULT_NUM_ROUNDS"]; ok {
		if rounds, err := strconv.Atoi(val); err == nil && rounds > 0 {
			cfg.Defaults.NumRounds = rounds
		}
	}
	if val, ok := env["DEFAULT_INTENSITY"]; ok {
		if intensity, err := strconv.Atoi(val); err == nil {
			cfg.Defaults.Intensity = intensity
		}
	}
	if val, ok := env["DEFAULT_LENGTH_PRESET"]; ok {
		cfg.Defaults.LengthPreset = val
	}
	if val, ok := env["DEFAULT_JUDGE_MODEL"]; ok {
		cfg.Defaults.JudgeModel = val
	}
}
