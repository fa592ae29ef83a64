package httpserver

const (
	ErrInvalidJSON   = "invalid json"
	ErrInvalidSecret = "invalid secret token"
	ErrNotReady      = "not ready"
)
