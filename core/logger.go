package core

// Logger is any logger that can report messages.
// expected args: error | map[string]interface{} | any identity value (eg. access.Viewer)
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
