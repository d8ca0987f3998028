package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

type contextKey int

const (
	sessionKey contextKey = iota
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithProfile annotates the logger with profile metadata when available.
// Credentials are never logged.
func WithProfile(log pslog.Logger, profile schema.Profile) pslog.Logger {
	if profile.ID != "" {
		log = log.With("profile", profile.ID)
	}
	if profile.Host != "" {
		log = log.With("host", profile.Addr())
	}
	if profile.Username != "" {
		log = log.With("ssh_user", profile.Username)
	}
	return log
}

// WithSession annotates the context logger with the session id if it is not
// already recorded on the context.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID == "" {
		return log
	}
	if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
		return log
	}
	return log.With("session", sessionID)
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// CopyContextFields copies the session marker from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if id, ok := src.Value(sessionKey).(schema.SessionID); ok && id != "" {
		dst = ContextWithSession(dst, id)
	}
	return dst
}
