package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName    = "tap.log"
	logMaxSizeMB   = 100
	logMaxBackups  = 5
	logMaxAgeDays  = 30
	streamsFileDir = "streams"
)

var (
	logger     zerolog.Logger
	fileWriter io.WriteCloser
	initOnce   sync.Once
	fileMutex  sync.Mutex
)

func init() {
	// usable before Init, e.g. in tests
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Init configures the global logger from viper: LOG_LEVEL sets the level and,
// unless DISABLE_LOG_FILE is set, a rotated JSON log file is written under CONFIG_FOLDER/logs.
// Console output goes to stderr so that stdout stays reserved for emitted messages.
func Init() {
	initOnce.Do(func() {
		level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
		if err != nil || level == zerolog.NoLevel {
			level = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = time.RFC3339Nano

		writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}
		if folder := viper.GetString("CONFIG_FOLDER"); folder != "" && !viper.GetBool("DISABLE_LOG_FILE") {
			fileWriter = &lumberjack.Logger{
				Filename:   filepath.Join(folder, "logs", logFileName),
				MaxSize:    logMaxSizeMB,
				MaxBackups: logMaxBackups,
				MaxAge:     logMaxAgeDays,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}

		logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	})
}

// Close flushes and closes the rotated log file, if any.
func Close() error {
	if fileWriter == nil {
		return nil
	}
	return fileWriter.Close()
}

// With returns a child logger carrying the given key/value pairs.
func With(fields ...any) zerolog.Logger {
	return logger.With().Fields(fields).Logger()
}

func Info(v ...any) {
	logger.Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	logger.Info().Msgf(format, v...)
}

func Debug(v ...any) {
	logger.Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	logger.Debug().Msgf(format, v...)
}

func Warn(v ...any) {
	logger.Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...any) {
	logger.Warn().Msgf(format, v...)
}

func Error(v ...any) {
	logger.Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	logger.Error().Msgf(format, v...)
}

func Fatal(v ...any) {
	logger.Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...any) {
	logger.Fatal().Msgf(format, v...)
}

// LogState logs the current bookmarks at info level.
func LogState(state any) {
	data, err := json.Marshal(state)
	if err != nil {
		Errorf("failed to marshal state: %s", err)
		return
	}
	logger.Info().RawJSON("state", data).Msg("state")
}

// LogCatalog writes the discovered catalog to CONFIG_FOLDER/streams.json and logs it.
func LogCatalog(catalog any) {
	data, err := json.Marshal(catalog)
	if err != nil {
		Errorf("failed to marshal catalog: %s", err)
		return
	}
	logger.Info().RawJSON("catalog", data).Msg("discovered streams")
	if err := FileLogger(catalog, streamsFileDir, ".json"); err != nil {
		Errorf("failed to write catalog file: %s", err)
	}
}

// FileLogger writes content as indented JSON to CONFIG_FOLDER/<fileName><fileExtension>.
func FileLogger(content any, fileName, fileExtension string) error {
	folder := viper.GetString("CONFIG_FOLDER")
	if folder == "" {
		return fmt.Errorf("config folder is not set")
	}
	return FileLoggerWithPath(content, filepath.Join(folder, fileName+fileExtension))
}

// FileLoggerWithPath writes content as indented JSON to path.
func FileLoggerWithPath(content any, path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal content: %s", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %s", err)
	}
	return os.WriteFile(path, data, 0o644)
}
