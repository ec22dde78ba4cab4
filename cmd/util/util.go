package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/statekit/statekit/lib/storage"
	"github.com/statekit/statekit/lib/storage/engines/file"
	"github.com/statekit/statekit/lib/storage/engines/memory"
	"github.com/statekit/statekit/lib/storage/engines/sqlite"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStorageFlags adds the storage backend selection flags to a command
func SetupStorageFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, "file", WrapString("Storage engine to use (memory, file, sqlite)"))

	key = "path"
	cmd.PersistentFlags().String(key, ".statekit", WrapString("Data directory for the file engine or database file for the sqlite engine"))

	key = "ttl"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Time to live for written values (0 = never expire)"))

	key = "schema-version"
	cmd.PersistentFlags().Int(key, 0, WrapString("Schema version stamped onto written records (0 = unversioned)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("statekit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// NewBackend creates the storage backend selected by configuration. The
// returned closer releases backend resources and must be called on exit.
func NewBackend() (storage.Backend, func(), error) {
	switch viper.GetString("engine") {
	case "memory":
		hub := memory.NewHub(nil)
		backend := hub.Handle()
		return backend, func() { _ = hub.Close() }, nil
	case "file":
		backend, err := file.NewFileBackend(viper.GetString("path"))
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	case "sqlite":
		backend, err := sqlite.NewSQLiteBackend(viper.GetString("path"), nil)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("invalid engine %s", viper.GetString("engine"))
	}
}

// NewLogger builds the CLI logger based on the log-level flag
func NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", viper.GetString("log-level"), err)
	}

	conf := zap.NewProductionConfig()
	conf.Level = level
	return conf.Build()
}

// GetTTL retrieves the configured time to live
func GetTTL() time.Duration {
	return viper.GetDuration("ttl")
}

// GetSchemaVersion retrieves the configured schema version
func GetSchemaVersion() int {
	return viper.GetInt("schema-version")
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
