package core

// Logger is any leveled logger used across the app.
// expected args fmt: error, map[string]interface{}, featureswitch.Session
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// NoopLogger discards everything. Handy in tests.
type NoopLogger struct{}

var _ Logger = NoopLogger{}

func (NoopLogger) Debug(string, ...interface{}) {}
func (NoopLogger) Info(string, ...interface{})  {}
func (NoopLogger) Warn(string, ...interface{})  {}
func (NoopLogger) Error(string, ...interface{}) {}
func (NoopLogger) Fatal(string, ...interface{}) {}
