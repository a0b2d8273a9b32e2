package core

// Logger is any service that can log messages.
// args may contain errors, maps of extra data and at most one acting profile.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Metrics records session and paging activity.
type Metrics interface {
	SessionTransition(from, to string)
	PageFetched(collection, direction string, fromCache bool)
	FetchRejected(collection string)
}

type nopLogger struct{}

// NopLogger discards every entry.
func NopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type nopMetrics struct{}

func NopMetrics() Metrics { return nopMetrics{} }

func (nopMetrics) SessionTransition(string, string) {}
func (nopMetrics) PageFetched(string, string, bool) {}
func (nopMetrics) FetchRejected(string)             {}
