// Package logger writes one JSON object per line to stderr. Field values are
// rendered as strings; email and phone values are masked unless redaction
// is turned off.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is a log severity.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel reads log.level from config. Unknown values mean INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

type sink struct {
	level  atomic.Int32
	redact atomic.Bool

	mu  sync.Mutex
	out io.Writer
}

var std = newSink(os.Stderr)

func newSink(w io.Writer) *sink {
	s := &sink{out: w}
	s.level.Store(int32(INFO))
	s.redact.Store(true)
	return s
}

func SetLevel(l Level) { std.level.Store(int32(l)) }

// SetRedactPII toggles masking of emails and phone numbers.
func SetRedactPII(on bool) { std.redact.Store(on) }

// SetOutput replaces the destination writer.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

// Debug, Info, Warn and Error take a message and alternating key/value pairs.
func Debug(msg string, kv ...interface{}) { std.write(DEBUG, msg, kv) }
func Info(msg string, kv ...interface{}) { std.write(INFO, msg, kv) }
func Warn(msg string, kv ...interface{}) { std.write(WARN, msg, kv) }
func Error(msg string, kv ...interface{}) { std.write(ERROR, msg, kv) }

func (s *sink) write(level Level, msg string, kv []interface{}) {
	if int32(level) < s.level.Load() {
		return
	}
	redact := s.redact.Load()

	line := make(map[string]string, 3+len(kv)/2)
	line["time"] = time.Now().UTC().Format(time.RFC3339)
	line["level"] = level.String()
	line["msg"] = msg
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 == len(kv) {
			// dangling key
			line[key] = "(missing)"
			break
		}
		val := fmt.Sprint(kv[i+1])
		if redact {
			val = mask(key, val)
		}
		line[key] = val
	}

	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Write(append(data, '\n'))
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func mask(key, val string) string {
	switch k := strings.ToLower(key); {
	case strings.Contains(k, "email"):
		return RedactEmail(val)
	case strings.Contains(k, "phone"), k == "number":
		return RedactPhone(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
