package domain

type contextKey string

const (
	ContextKeyClientIdentifier contextKey = "clientIdentifier"
)
