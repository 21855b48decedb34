package session

type noopLogger struct{}

// Noop returns a Logger that discards everything.
func Noop() Logger {
	return noopLogger{}
}

func (noopLogger) Log(string, ...any)            {}
func (noopLogger) WriteSummary([]string)         {}
func (noopLogger) UpdateMetadata(map[string]any) {}
func (noopLogger) CopyArtifact(string, string)   {}
func (noopLogger) WriteJSON(string, any)         {}
func (noopLogger) Dir() string                   { return "" }
func (noopLogger) Label() string                 { return "unavailable" }
func (noopLogger) Active() bool                  { return false }
