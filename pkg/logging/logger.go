package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end
// of a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// colorEnabled tracks whether colorized output should be used. It defaults
// to automatic terminal detection but can be overridden by SetColorMode.
var colorEnabled int32 = -1

// SetColorMode configures whether warning/error output is colorized.
// Passing nil restores automatic terminal detection.
func SetColorMode(enabled *bool) {
	if enabled == nil {
		atomic.StoreInt32(&colorEnabled, -1)
		return
	}
	if *enabled {
		atomic.StoreInt32(&colorEnabled, 1)
	} else {
		atomic.StoreInt32(&colorEnabled, 0)
	}
}

// useColor reports whether colorized output should currently be used.
func useColor() bool {
	switch atomic.LoadInt32(&colorEnabled) {
	case 1:
		return true
	case 0:
		return false
	default:
		return isatty.IsTerminal(os.Stdout.Fd())
	}
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. It is designed to use the
// standard logger provided by the log package, so it respects any flags set
// for that logger. It is safe for concurrent usage.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
	// level is the logging level for this logger and its subloggers.
	level *Level
}

// RootLogger is the root logger from which all other loggers derive. It
// logs at LevelInfo by default.
var RootLogger = NewRoot(LevelInfo)

// NewRoot creates a new root logger at the specified level.
func NewRoot(level Level) *Logger {
	l := level
	return &Logger{level: &l}
}

// SetLevel changes the logging level for this logger and all of its
// subloggers (level storage is shared by reference with the root).
func (l *Logger) SetLevel(level Level) {
	if l == nil || l.level == nil {
		return
	}
	*l.level = level
}

// Level returns the current effective logging level.
func (l *Logger) Level() Level {
	if l == nil || l.level == nil {
		return LevelDisabled
	}
	return *l.level
}

// Sublogger creates a new sublogger with the specified name. The sublogger
// shares its ancestor's level setting.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		prefix: prefix,
		level:  l.level,
	}
}

// output is the internal logging method.
func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(calldepth, line)
}

// enabled reports whether the logger should emit at the given level.
func (l *Logger) enabled(level Level) bool {
	return l != nil && l.Level() >= level
}

// Print logs information at LevelInfo with semantics equivalent to
// fmt.Print.
func (l *Logger) Print(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Printf logs information at LevelInfo with semantics equivalent to
// fmt.Printf.
func (l *Logger) Printf(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Println logs information at LevelInfo with semantics equivalent to
// fmt.Println.
func (l *Logger) Println(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(3, fmt.Sprintln(v...))
	}
}

// Writer returns an io.Writer that writes lines using Println.
func (l *Logger) Writer() io.Writer {
	if !l.enabled(LevelInfo) {
		return ioutil.Discard
	}
	return &writer{callback: func(s string) { l.Println(s) }}
}

// Debug logs information at LevelDebug with semantics equivalent to
// fmt.Print.
func (l *Logger) Debug(v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Debugf logs information at LevelDebug with semantics equivalent to
// fmt.Printf.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Debugln logs information at LevelDebug with semantics equivalent to
// fmt.Println.
func (l *Logger) Debugln(v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(3, fmt.Sprintln(v...))
	}
}

// DebugWriter returns an io.Writer that writes lines using Debugln.
func (l *Logger) DebugWriter() io.Writer {
	if !l.enabled(LevelDebug) {
		return ioutil.Discard
	}
	return &writer{callback: func(s string) { l.Debugln(s) }}
}

// Trace logs information at LevelTrace.
func (l *Logger) Trace(v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Warn logs error information at LevelWarn with a warning prefix, colorized
// yellow when color output is enabled.
func (l *Logger) Warn(err error) {
	if l.enabled(LevelWarn) {
		message := fmt.Sprintf("Warning: %v", err)
		if useColor() {
			message = color.YellowString("%s", message)
		}
		l.output(3, message)
	}
}

// Error logs error information at LevelError with an error prefix,
// colorized red when color output is enabled.
func (l *Logger) Error(err error) {
	if l.enabled(LevelError) {
		message := fmt.Sprintf("Error: %v", err)
		if useColor() {
			message = color.RedString("%s", message)
		}
		l.output(3, message)
	}
}
