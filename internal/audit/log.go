// Package audit emits an append-only trail of authentication and account
// lifecycle events as JSON lines on the service logger. Entries are
// enriched with the request id and the acting principal when the context
// carries them.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gatekeep.org/internal/access"
	"gatekeep.org/internal/obs"
)

// Event names recorded by the HTTP layer.
const (
	EventLoginSucceeded = "auth.login.succeeded"
	EventLoginDenied    = "auth.login.denied"
	EventLogout         = "auth.logout"
	EventUserCreated    = "user.created"
	EventPasswordReset  = "user.password_reset"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit
// entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Record writes one audit entry.
func Record(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if user, ok := access.UserFromContext(ctx); ok {
		entry["actor"] = user.Login
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
