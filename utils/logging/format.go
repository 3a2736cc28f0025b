// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Format modes available
const (
	Plain Format = iota
	Colors
	JSON
)

var (
	errUnknownFormat = errors.New("unknown format")

	levelToColor = map[Level]string{
		Fatal: "\033[31m", // red
		Error: "\033[38;5;208m",
		Warn:  "\033[33m", // yellow
		Info:  "\033[0m",
		Trace: "\033[35m",
		Debug: "\033[36m",
		Verbo: "\033[32m",
	}

	defaultEncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		EncodeLevel:    levelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
)

// Format determines how log lines are rendered.
type Format int

func ToFormat(f string) (Format, error) {
	switch strings.ToUpper(f) {
	case "PLAIN":
		return Plain, nil
	case "COLORS":
		return Colors, nil
	case "JSON":
		return JSON, nil
	default:
		return Plain, fmt.Errorf("%w: %q", errUnknownFormat, f)
	}
}

func (f Format) String() string {
	switch f {
	case Colors:
		return "colors"
	case JSON:
		return "json"
	default:
		return "plain"
	}
}

// Encoder returns the zap encoder for this format.
func (f Format) Encoder() zapcore.Encoder {
	switch f {
	case JSON:
		return zapcore.NewJSONEncoder(defaultEncoderConfig)
	case Colors:
		config := defaultEncoderConfig
		config.EncodeLevel = colorLevelEncoder
		return zapcore.NewConsoleEncoder(config)
	default:
		return zapcore.NewConsoleEncoder(defaultEncoderConfig)
	}
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(Level(l).String())
}

func colorLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	level := Level(l)
	enc.AppendString(levelToColor[level] + level.AlignedString() + "\033[0m")
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("[01-02|15:04:05.000]"))
}

// WrapPrefix adds square brackets around the prefix when it is rendered in
// a human-readable format.
func (f Format) WrapPrefix(prefix string) string {
	if prefix == "" || f == JSON {
		return prefix
	}
	return fmt.Sprintf("<%s>", prefix)
}
