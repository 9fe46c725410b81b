package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FleetLogger provides the structured logging interface used across the
// scheduler, the ingestion pipeline and every engine adapter.
type FleetLogger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, err error, fields ...zap.Field)
	Fatal(msg string, err error, fields ...zap.Field)
	With(fields ...zap.Field) FleetLogger
	Sync() error
}

// Logger implements FleetLogger using zap.
type Logger struct {
	logger *zap.Logger
}

// LoggerConfig defines logger configuration.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	Development bool   `mapstructure:"development"`
}

// NewLogger creates a new structured logger based on configuration.
func NewLogger(config LoggerConfig) (FleetLogger, error) {
	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var encoderConfig zapcore.EncoderConfig
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(config.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", config.Format)
	}

	var writeSyncer zapcore.WriteSyncer
	switch strings.ToLower(config.Output) {
	case "stdout", "":
		writeSyncer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writeSyncer = zapcore.AddSync(os.Stderr)
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writeSyncer = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	var options []zap.Option
	if config.Development {
		options = append(options, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		options = append(options, zap.AddCaller())
	}

	return &Logger{logger: zap.New(core, options...)}, nil
}

// NewDefaultLogger creates a logger with sensible defaults for development.
func NewDefaultLogger() FleetLogger {
	config := LoggerConfig{
		Level:       "info",
		Format:      "console",
		Output:      "stdout",
		Development: true,
	}

	logger, err := NewLogger(config)
	if err != nil {
		zapLogger, _ := zap.NewDevelopment()
		return &Logger{logger: zapLogger}
	}

	return logger
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.logger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.logger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.logger.Warn(msg, fields...) }

func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	allFields := make([]zap.Field, 0, len(fields)+1)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	allFields = append(allFields, fields...)
	l.logger.Error(msg, allFields...)
}

func (l *Logger) Fatal(msg string, err error, fields ...zap.Field) {
	allFields := make([]zap.Field, 0, len(fields)+1)
	if err != nil {
		allFields = append(allFields, zap.Error(err))
	}
	allFields = append(allFields, fields...)
	l.logger.Fatal(msg, allFields...)
}

func (l *Logger) With(fields ...zap.Field) FleetLogger {
	return &Logger{logger: l.logger.With(fields...)}
}

func (l *Logger) Sync() error { return l.logger.Sync() }

func parseLogLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

// FleetFields provides common field constructors for structured logging.
type FleetFields struct{}

// Fields is the package-level field-constructor helper.
var Fields FleetFields

func (FleetFields) String(key, value string) zap.Field      { return zap.String(key, value) }
func (FleetFields) Int(key string, value int) zap.Field      { return zap.Int(key, value) }
func (FleetFields) Int64(key string, v int64) zap.Field      { return zap.Int64(key, v) }
func (FleetFields) Float64(key string, v float64) zap.Field  { return zap.Float64(key, v) }
func (FleetFields) Bool(key string, v bool) zap.Field        { return zap.Bool(key, v) }

func (FleetFields) Duration(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case int64:
		return zap.Duration(key, time.Duration(v))
	case time.Duration:
		return zap.Duration(key, v)
	default:
		return zap.String(key, fmt.Sprintf("%v", value))
	}
}

func (FleetFields) Error(err error) zap.Field                    { return zap.Error(err) }
func (FleetFields) Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// Instance creates fields identifying a monitored database instance.
func (FleetFields) Instance(name string, kind string) []zap.Field {
	return []zap.Field{
		zap.String("instance", name),
		zap.String("engine", kind),
	}
}

// Database creates fields for database connection context.
func (FleetFields) Database(host string, port int, database string) []zap.Field {
	return []zap.Field{
		zap.String("db_host", host),
		zap.Int("db_port", port),
		zap.String("db_name", database),
	}
}

// Engine creates fields for engine-adapter context.
func (FleetFields) Engine(name, version string) []zap.Field {
	return []zap.Field{
		zap.String("engine_name", name),
		zap.String("engine_version", version),
	}
}

// SnapshotPath creates a field for the path a snapshot was written to.
func (FleetFields) SnapshotPath(path string) zap.Field {
	return zap.String("snapshot_path", path)
}

// Metrics creates fields summarizing a collection result.
func (FleetFields) Metrics(connected bool, alertCount int) []zap.Field {
	return []zap.Field{
		zap.Bool("connected", connected),
		zap.Int("alert_count", alertCount),
	}
}
