package application

import "context"

// Command asks the system to change state. The name tags logs and metrics.
type Command interface {
	CommandName() string
}

// Query reads state without changing it.
type Query interface {
	QueryName() string
}

// Handler handles one command or query type.
type Handler[M any, R any] interface {
	Handle(ctx context.Context, msg M) (R, error)
}
