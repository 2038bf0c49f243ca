package main

// Logger is the minimal logging interface threaded through the clients.
type Logger interface {
	Log(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Log(format string, args ...any) {}

// prefixLogger wraps a logger with a fixed prefix (e.g. a client instance id).
type prefixLogger struct {
	prefix string
	base   Logger
}

func (p *prefixLogger) Log(format string, args ...any) {
	p.base.Log("["+p.prefix+"] "+format, args...)
}
