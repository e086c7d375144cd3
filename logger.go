package edupage

// Logger is the minimal logging surface used throughout the client.
type Logger interface {
	Log(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Log(string, ...any) {}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}

// prefixLogger wraps a logger with a fixed prefix, used to tag
// per-account output.
type prefixLogger struct {
	prefix string
	base   Logger
}

func (p *prefixLogger) Log(format string, args ...any) {
	p.base.Log("["+p.prefix+"] "+format, args...)
}

// PrefixLogger returns a logger that prepends "[prefix] " to every line.
func PrefixLogger(prefix string, base Logger) Logger {
	if base == nil {
		base = NopLogger()
	}
	return &prefixLogger{prefix: prefix, base: base}
}
