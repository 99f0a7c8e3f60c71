package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Subsystem is the tflog subsystem name used by this package.
const Subsystem = "freeipa"

// LogLevelEnv is the environment variable controlling the subsystem log level.
const LogLevelEnv = "FREEIPA_LOG"

// Logger interface for FreeIPA operations.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Trace(msg string, fields map[string]any)
}

// TFLogger wraps tflog for use in the rpc package.
type TFLogger struct {
	ctx       context.Context
	subsystem string
}

// NewTFLogger creates a new subsystem logger bound to ctx.
func NewTFLogger(ctx context.Context, subsystem string) *TFLogger {
	return &TFLogger{
		ctx:       ctx,
		subsystem: subsystem,
	}
}

func (l *TFLogger) Debug(msg string, fields map[string]any) {
	tflog.SubsystemDebug(l.ctx, l.subsystem, msg, fields)
}

func (l *TFLogger) Info(msg string, fields map[string]any) {
	tflog.SubsystemInfo(l.ctx, l.subsystem, msg, fields)
}

func (l *TFLogger) Warn(msg string, fields map[string]any) {
	tflog.SubsystemWarn(l.ctx, l.subsystem, msg, fields)
}

func (l *TFLogger) Error(msg string, fields map[string]any) {
	tflog.SubsystemError(l.ctx, l.subsystem, msg, fields)
}

func (l *TFLogger) Trace(msg string, fields map[string]any) {
	tflog.SubsystemTrace(l.ctx, l.subsystem, msg, fields)
}

// NewLoggingContext registers the freeipa subsystem on ctx and masks
// credential-bearing fields. Without a root logger in ctx this is a no-op.
func NewLoggingContext(ctx context.Context) context.Context {
	ctx = tflog.NewSubsystem(ctx, Subsystem, tflog.WithLevelFromEnv(LogLevelEnv))
	return tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, Subsystem, sensitiveFieldKeys()...)
}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	fields = SanitizeFields(fields)
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, Subsystem, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		fields["error_category"] = string(GetErrorCategory(err))
		tflog.SubsystemError(ctx, Subsystem, "Operation failed", fields)
	} else {
		tflog.SubsystemDebug(ctx, Subsystem, "Operation completed successfully", fields)
	}

	return err
}

// LogRPCError logs FreeIPA-specific error information.
func LogRPCError(ctx context.Context, method string, err error, fields map[string]any) {
	fields = SanitizeFields(fields)

	fields["method"] = method
	fields["error"] = err.Error()

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		fields["ipa_error_name"] = rpcErr.Name
		fields["ipa_error_code"] = rpcErr.Code
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode > 0 {
		fields["http_status"] = transportErr.StatusCode
	}

	tflog.SubsystemError(ctx, Subsystem, "FreeIPA request failed", fields)
}

// LogSessionEvent logs session lifecycle events.
func LogSessionEvent(ctx context.Context, event string, fields map[string]any) {
	fields = SanitizeFields(fields)

	fields["event"] = event

	switch event {
	case "login_success", "logout":
		tflog.SubsystemInfo(ctx, Subsystem, "Session event", fields)
	case "login_failed", "session_expired":
		tflog.SubsystemError(ctx, Subsystem, "Session event", fields)
	case "login_attempt":
		tflog.SubsystemDebug(ctx, Subsystem, "Session event", fields)
	default:
		tflog.SubsystemTrace(ctx, Subsystem, "Session event", fields)
	}
}

func sensitiveFieldKeys() []string {
	return []string{"password", "passwd", "secret", "token", "cookie", "credentials"}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitive := make(map[string]bool)
	for _, k := range sensitiveFieldKeys() {
		sensitive[k] = true
	}

	for k, v := range fields {
		if sensitive[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks for inline credentials such as form bodies or cookies.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"ipa_session=",
		"token=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
