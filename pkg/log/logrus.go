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
	"github.com/sirupsen/logrus"
)

// NewLogrus creates the human-facing CLI logger. Timestamps are kept short
// because the interesting durations are printed explicitly by the commands.
func NewLogrus() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	return logger
}

type prefixFormatter struct {
	prefix string
	inner  logrus.Formatter
}

func (p prefixFormatter) Format(e *logrus.Entry) ([]byte, error) {
	e.Message = p.prefix + e.Message
	return p.inner.Format(e)
}

// Prefix returns a logger that prepends the given prefix to every message,
// used to visually indent sub-steps below their parent task.
func Prefix(entry *logrus.Entry, prefix string) *logrus.Entry {
	sub := logrus.New()
	sub.SetOutput(entry.Logger.Out)
	sub.SetLevel(entry.Logger.Level)
	sub.SetFormatter(prefixFormatter{
		prefix: prefix,
		inner:  entry.Logger.Formatter,
	})

	return sub.WithFields(entry.Data)
}
