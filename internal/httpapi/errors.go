package httpapi

const (
	ErrMissingID   = "missing id"
	ErrNotFound    = "not found"
	ErrDependency  = "dependency error"
	ErrUnavailable = "backend unavailable"
)
