/*
Copyright 2025 The fleetform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the zap logger used for library-level integration,
// e.g. as the controller-runtime logger.
type Options struct {
	// Debug enables the development config and debug-level output.
	Debug bool
	// Format selects between console and JSON output.
	Format Format
}

type Format string

const (
	FormatJSON    Format = "JSON"
	FormatConsole Format = "Console"
)

// NewDefault creates a production console logger at info level.
func NewDefault() *zap.SugaredLogger {
	return New(false, FormatConsole)
}

func New(debug bool, format Format) *zap.SugaredLogger {
	return NewFromOptions(Options{
		Debug:  debug,
		Format: format,
	}).Sugar()
}

func NewFromOptions(o Options) *zap.Logger {
	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	if o.Debug {
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	cfg := zap.Config{
		Level:             lvl,
		Development:       o.Debug,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          "console",
		EncoderConfig:     encCfg,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	if o.Format == FormatJSON {
		cfg.Encoding = "json"
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		// this should never happen for a static config
		panic(err)
	}

	return log
}
