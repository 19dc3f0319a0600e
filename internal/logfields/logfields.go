package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyTriggerID  = "trigger_id"
	KeyStatus     = "status"
	KeyStage      = "stage"
	KeyReason     = "reason"
	KeyRoot       = "root"
	KeyPath       = "path"
	KeyOp         = "op"
	KeyImage      = "image"
	KeyRegistry   = "registry"
	KeyCommand    = "command"
	KeyCommit     = "commit"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyHTTPStatus = "http_status"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyError      = "error"
	KeyStdout     = "stdout"
	KeyStderr     = "stderr"
	KeyExitCode   = "exit_code"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func TriggerID(id string) slog.Attr    { return slog.String(KeyTriggerID, id) }
func Status(s string) slog.Attr        { return slog.String(KeyStatus, s) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Root(r string) slog.Attr          { return slog.String(KeyRoot, r) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Op(op string) slog.Attr           { return slog.String(KeyOp, op) }
func Image(ref string) slog.Attr       { return slog.String(KeyImage, ref) }
func Registry(r string) slog.Attr      { return slog.String(KeyRegistry, r) }
func Command(c string) slog.Attr       { return slog.String(KeyCommand, c) }
func Commit(c string) slog.Attr        { return slog.String(KeyCommit, c) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func HTTPStatus(code int) slog.Attr    { return slog.Int(KeyHTTPStatus, code) }
func RemoteAddr(a string) slog.Attr    { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Stdout(s string) slog.Attr        { return slog.String(KeyStdout, s) }
func Stderr(s string) slog.Attr        { return slog.String(KeyStderr, s) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
