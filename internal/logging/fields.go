package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService    = "service"
	FieldUserID     = "user_id"
	FieldClerkID    = "clerk_id"
	FieldEmail      = "email"
	FieldDeliveryID = "delivery_id"
	FieldEventType  = "event_type"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the local user ID.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// ClerkID returns a slog attribute for the Clerk user ID.
func ClerkID(id string) slog.Attr {
	return slog.String(FieldClerkID, id)
}

// Email returns a slog attribute for an email address.
func Email(email string) slog.Attr {
	return slog.String(FieldEmail, email)
}

// DeliveryID returns a slog attribute for a webhook delivery ID.
func DeliveryID(id string) slog.Attr {
	return slog.String(FieldDeliveryID, id)
}

// EventType returns a slog attribute for a webhook event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
