package logger

import (
	"time"

	"go.uber.org/zap"
)

// Standard fields — HTTP.

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field       { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field              { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// Standard fields — sign-in flow.

func SessionID(v string) zap.Field { return zap.String("session_id", v) }
func FlowState(v string) zap.Field { return zap.String("flow_state", v) }
func Subject(v string) zap.Field   { return zap.String("subject", v) }
func PartyID(v string) zap.Field   { return zap.String("party_id", v) }
func BPID(v string) zap.Field      { return zap.String("bp_id", v) }
func QueueName(v string) zap.Field { return zap.String("queue_name", v) }

// Standard fields — system.

func Component(v string) zap.Field { return zap.String("component", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Target(v string) zap.Field    { return zap.String("target", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// Generic fields.

func Count(v int) zap.Field             { return zap.Int("count", v) }
func String(key, v string) zap.Field    { return zap.String(key, v) }
func Int(key string, v int) zap.Field   { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
