package log

import (
	"fmt"
	"time"
)

// Logger is the structured logger every package writes to. Implementations
// must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a key-value pair attached to a log line. Build fields with the
// helpers below so adapters can keep numbers and durations typed.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{key, value} }
func Int(key string, value int) Field                { return Field{key, value} }
func Uint64(key string, value uint64) Field          { return Field{key, value} }
func Bool(key string, value bool) Field              { return Field{key, value} }
func Duration(key string, value time.Duration) Field { return Field{key, value} }

// Uint32 widens value; timelines and transaction ids are uint32.
func Uint32(key string, value uint32) Field { return Field{key, uint64(value)} }

// Uint8 widens value; resource manager ids and info bytes are uint8.
func Uint8(key string, value uint8) Field { return Field{key, uint64(value)} }

// Hex renders value as 0x-prefixed hexadecimal, for flag bytes and masks.
func Hex(key string, value uint64) Field { return Field{key, fmt.Sprintf("%#x", value)} }

// Err attaches err under the "error" key.
func Err(err error) Field { return Field{"error", err} }

// Stringer renders v with its String method, e.g. log pointers and page ids.
func Stringer(key string, v fmt.Stringer) Field { return Field{key, v.String()} }

// Any attaches a value the adapter renders by reflection.
func Any(key string, value any) Field { return Field{key, value} }
