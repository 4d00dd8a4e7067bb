package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Logger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
	PanicLevel LogLevel = "panic"
)

type contextKey string

const (
	RequestIDKey     contextKey = "request_id"
	ParticipantIDKey contextKey = "participant_id"
	JobKey           contextKey = "job"
)

type Config struct {
	Level      LogLevel `json:"level"`
	Format     string   `json:"format"` // json, text
	Output     string   `json:"output"` // stdout, stderr, file path
	TimeFormat string   `json:"time_format"`
	Caller     bool     `json:"caller"`
	Colors     bool     `json:"colors"`
	AppName    string   `json:"app_name"`
	Version    string   `json:"version"`
}

func NewLogger(config *Config) (*Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&JSONFormatter{
			TimeFormat: config.TimeFormat,
			App:        config.AppName,
			Version:    config.Version,
		})
	} else {
		logger.SetFormatter(&TextFormatter{
			TimeFormat: config.TimeFormat,
			App:        config.AppName,
			Colors:     config.Colors,
		})
	}

	if config.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	} else if config.Output == "stdout" || config.Output == "" {
		logger.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		logger.SetOutput(file)
	}

	logger.SetReportCaller(config.Caller)

	return &Logger{
		logger: logger,
		fields: make(logrus.Fields),
	}, nil
}

// NewDiscard returns a logger that drops everything; used in tests.
func NewDiscard() *Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Logger{
		logger: logger,
		fields: make(logrus.Fields),
	}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(logrus.Fields)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value

	return &Logger{
		logger: l.logger,
		fields: newFields,
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(logrus.Fields)
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		logger: l.logger,
		fields: newFields,
	}
}

func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := extractContextFields(ctx)
	return l.WithFields(fields)
}

func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

func (l *Logger) WithParticipantID(participantID primitive.ObjectID) *Logger {
	return l.WithField("participant_id", participantID.Hex())
}

func (l *Logger) WithInvestmentID(investmentID primitive.ObjectID) *Logger {
	return l.WithField("investment_id", investmentID.Hex())
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.WithField("request_id", requestID)
}

func (l *Logger) Debug(msg string) {
	l.logger.WithFields(l.fields).Debug(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Debugf(format, args...)
}

func (l *Logger) Info(msg string) {
	l.logger.WithFields(l.fields).Info(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Infof(format, args...)
}

func (l *Logger) Warn(msg string) {
	l.logger.WithFields(l.fields).Warn(msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Warnf(format, args...)
}

func (l *Logger) Error(msg string) {
	l.logger.WithFields(l.fields).Error(msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Errorf(format, args...)
}

func (l *Logger) Fatal(msg string) {
	l.logger.WithFields(l.fields).Fatal(msg)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.WithFields(l.fields).Fatalf(format, args...)
}

// Structured logging methods
func (l *Logger) LogDistributionEvent(participantID primitive.ObjectID, event string, details map[string]interface{}) {
	fields := map[string]interface{}{
		"participant_id": participantID.Hex(),
		"event":          event,
		"type":           "distribution_event",
	}

	for k, v := range details {
		fields[k] = v
	}

	l.WithFields(fields).Info("Distribution event processed")
}

func (l *Logger) LogRedirect(from primitive.ObjectID, level int, historyType string, amount float64, reason string) {
	l.WithFields(map[string]interface{}{
		"from_participant_id": from.Hex(),
		"level":               level,
		"history_type":        historyType,
		"amount":              amount,
		"reason":              reason,
		"type":                "redirect",
	}).Info("Income redirected to fallback account")
}

func (l *Logger) LogSettlementEvent(job string, processed, skipped int, details map[string]interface{}) {
	fields := map[string]interface{}{
		"job":       job,
		"processed": processed,
		"skipped":   skipped,
		"type":      "settlement_event",
	}

	for k, v := range details {
		fields[k] = v
	}

	if skipped > 0 {
		l.WithFields(fields).Warn("Settlement finished with skipped units")
	} else {
		l.WithFields(fields).Info("Settlement finished")
	}
}

func (l *Logger) SetOutput(output io.Writer) {
	l.logger.SetOutput(output)
}

func (l *Logger) SetLevel(level LogLevel) {
	logrusLevel, err := logrus.ParseLevel(string(level))
	if err != nil {
		logrusLevel = logrus.InfoLevel
	}
	l.logger.SetLevel(logrusLevel)
}

// Helper function to extract fields from context
func extractContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields["request_id"] = requestID
	}

	if participantID := ctx.Value(ParticipantIDKey); participantID != nil {
		if oid, ok := participantID.(primitive.ObjectID); ok {
			fields["participant_id"] = oid.Hex()
		} else if str, ok := participantID.(string); ok {
			fields["participant_id"] = str
		}
	}

	if job, ok := ctx.Value(JobKey).(string); ok && job != "" {
		fields["job"] = job
	}

	return fields
}
