package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultTimeFormat = "2006-01-02T15:04:05Z07:00"

// JSONFormatter writes one JSON object per entry. Entry fields are merged in
// last, so a field named like a header key replaces it.
type JSONFormatter struct {
	TimeFormat string
	App        string
	Version    string
}

func (f *JSONFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	line := make(logrus.Fields, len(entry.Data)+5)
	line["timestamp"] = entry.Time.Format(timeFormat(f.TimeFormat))
	line["level"] = entry.Level.String()
	line["message"] = entry.Message
	if f.App != "" {
		line["app"] = f.App
		line["version"] = f.Version
	}
	if entry.HasCaller() {
		line["caller"] = fmt.Sprintf("%s:%d", entry.Caller.File, entry.Caller.Line)
	}
	for k, v := range entry.Data {
		line[k] = v
	}

	b := buffer(entry)
	if err := json.NewEncoder(b).Encode(line); err != nil {
		return nil, fmt.Errorf("encode log entry: %w", err)
	}
	return b.Bytes(), nil
}

// TextFormatter writes "time LEVEL [app] [job] message k=v ..." lines with the
// remaining fields sorted by key.
type TextFormatter struct {
	TimeFormat string
	App        string
	Colors     bool
}

var levelColors = map[logrus.Level]string{
	logrus.PanicLevel: "\033[31m",
	logrus.FatalLevel: "\033[31m",
	logrus.ErrorLevel: "\033[31m",
	logrus.WarnLevel:  "\033[33m",
	logrus.InfoLevel:  "\033[36m",
}

func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := buffer(entry)

	level := strings.ToUpper(entry.Level.String())
	if f.Colors {
		color, ok := levelColors[entry.Level]
		if !ok {
			color = "\033[37m"
		}
		level = color + level + "\033[0m"
	}
	fmt.Fprintf(b, "%s %s ", entry.Time.Format(timeFormat(f.TimeFormat)), level)

	if f.App != "" {
		fmt.Fprintf(b, "[%s] ", f.App)
	}
	if job, ok := entry.Data["job"]; ok {
		fmt.Fprintf(b, "[%v] ", job)
	}
	if entry.HasCaller() {
		fmt.Fprintf(b, "%s:%d ", entry.Caller.File, entry.Caller.Line)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "job" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func buffer(entry *logrus.Entry) *bytes.Buffer {
	if entry.Buffer != nil {
		return entry.Buffer
	}
	return &bytes.Buffer{}
}

func timeFormat(layout string) string {
	if layout == "" {
		return defaultTimeFormat
	}
	return layout
}
