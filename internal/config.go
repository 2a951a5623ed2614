package internal

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultPort         = 8080
	DefaultSettingsFile = "settings.txt"
	settingsFileEnv     = "SETTINGS_FILE"
)

var validate = validator.New()

type Config struct {
	Port              string        `env:"PORT,default=8080"`
	Host              string        `env:"HOST"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	AuditLogPath      string        `env:"AUDIT_LOG_PATH,default=file.log"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	MaxLineLength     int           `env:"MAX_LINE_LENGTH,default=65536"`
	ArchivePath       string        `env:"ARCHIVE_PATH"`
	ArchiveBufferSize int           `env:"ARCHIVE_BUFFER_SIZE,default=256"`
	LimitMessages     *int          `env:"LIMIT_MESSAGES"`
	CensoredDir       string        `env:"CENSORED_DIR"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL,default=30s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	HealthPort        int           `env:"HEALTH_PORT,default=0"`
}

// LoadFromEnviron reads the settings file named by SETTINGS_FILE (settings.txt by default),
// then applies the process environment on top of it.
func LoadFromEnviron() (Config, error) {
	settingsFile := os.Getenv(settingsFileEnv)
	if settingsFile == "" {
		settingsFile = DefaultSettingsFile
	}
	return Load(settingsFile, os.Environ())
}

// Load builds a Config from an optional properties-style settings file ("port=8080")
// and environ entries ("PORT=8080"). Keys of the file are upper-cased; environ wins on conflicts.
// A missing settings file is not an error.
func Load(settingsFile string, environ []string) (Config, error) {
	es := env.EnvSet{}
	if settingsFile != "" {
		values, err := godotenv.Read(settingsFile)
		switch {
		case err == nil:
			for k, v := range values {
				es[strings.ToUpper(k)] = v
			}
		case stderrors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read settings %s: %w", settingsFile, err)
		}
	}

	fromEnv, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	maps.Copy(es, fromEnv)

	var config Config
	if err := env.Unmarshal(es, &config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}

// GetPort returns the configured port, or DefaultPort with a warning when it is missing or invalid.
func (c Config) GetPort(log *slog.Logger) int {
	port, err := ParsePort(c.Port)
	if err != nil {
		log.Warn("Invalid port, falling back to default",
			"port", c.Port, "default", DefaultPort, "error", err)
		return DefaultPort
	}
	return port
}

func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidPort, s)
	}
	if err := validate.Var(port, "min=1,max=65535"); err != nil {
		return 0, fmt.Errorf("%w: %d", errors.ErrInvalidPort, port)
	}
	return port, nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
