/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package logging provides component-scoped structured logging for flynats.

Loggers are created per component ("connection", "connector", "cli") and
take key-value pairs after the message:

	log := logging.NewLogger("connection")
	log.Info("Connected", "endpoint", addr, "server_id", id)

Output is rendered by zerolog: a console line in text mode

	2026-01-02T15:04:05.000Z [INFO ] [connection] Connected endpoint=... server_id=...

or one JSON object per line in JSON mode. Level, output and mode are
global and may be changed at any time; existing loggers pick up the
change on their next call.
*/
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents the severity of a log message.
type Level int

const (
	// DEBUG level for detailed debugging information.
	DEBUG Level = iota
	// INFO level for general operational information.
	INFO
	// WARN level for warning conditions.
	WARN
	// ERROR level for error conditions.
	ERROR
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Config holds logger configuration options.
type Config struct {
	Level    Level
	Output   io.Writer
	JSONMode bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:    INFO,
		Output:   os.Stderr,
		JSONMode: false,
	}
}

// globalConfig holds the global logger configuration. generation changes
// on every update so loggers know to rebuild their zerolog instance.
var (
	globalConfig     = DefaultConfig()
	globalGeneration = uint64(1)
	globalMu         sync.RWMutex
)

func updateGlobal(fn func(*Config)) {
	globalMu.Lock()
	defer globalMu.Unlock()
	fn(&globalConfig)
	globalGeneration++
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level Level) {
	updateGlobal(func(c *Config) { c.Level = level })
}

// SetGlobalOutput sets the global log output.
func SetGlobalOutput(w io.Writer) {
	updateGlobal(func(c *Config) { c.Output = w })
}

// SetJSONMode enables or disables JSON output mode.
func SetJSONMode(enabled bool) {
	updateGlobal(func(c *Config) { c.JSONMode = enabled })
}

// Configure applies a whole Config at once.
func Configure(cfg Config) {
	updateGlobal(func(c *Config) {
		if cfg.Output == nil {
			cfg.Output = c.Output
		}
		*c = cfg
	})
}

// Logger provides structured logging for one component.
type Logger struct {
	component string

	mu         sync.Mutex
	generation uint64
	zl         zerolog.Logger
}

// NewLogger creates a new Logger for the specified component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{component: "", generation: ^uint64(0), zl: zerolog.Nop()}
}

// current returns the zerolog logger for the active global config.
func (l *Logger) current() *zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.generation == ^uint64(0) {
		return &l.zl
	}

	globalMu.RLock()
	cfg, gen := globalConfig, globalGeneration
	globalMu.RUnlock()

	if gen != l.generation {
		l.zl = build(l.component, cfg)
		l.generation = gen
	}
	return &l.zl
}

func build(component string, cfg Config) zerolog.Logger {
	if cfg.JSONMode {
		return zerolog.New(cfg.Output).
			Level(cfg.Level.zerolog()).
			With().Timestamp().Str("component", component).Logger()
	}

	console := zerolog.ConsoleWriter{
		Out:        cfg.Output,
		NoColor:    true,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("[%-5s]", strings.ToUpper(fmt.Sprint(i)))
		},
		FormatMessage: func(i interface{}) string {
			if i == nil {
				return "[" + component + "]"
			}
			return fmt.Sprintf("[%s] %v", component, i)
		},
	}
	return zerolog.New(console).Level(cfg.Level.zerolog()).With().Timestamp().Logger()
}

// log writes a log entry at the specified level.
func (l *Logger) log(level Level, msg string, args ...interface{}) {
	zl := l.current()

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = zl.Debug()
	case WARN:
		ev = zl.Warn()
	case ERROR:
		ev = zl.Error()
	default:
		ev = zl.Info()
	}
	if ev == nil {
		return
	}

	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		ev = field(ev, key, args[i+1])
	}
	if len(args)%2 != 0 {
		ev = field(ev, "extra", args[len(args)-1])
	}
	ev.Msg(msg)
}

func field(ev *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case error:
		return ev.AnErr(key, v)
	case fmt.Stringer:
		return ev.Stringer(key, v)
	default:
		return ev.Interface(key, v)
	}
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}
