package logger

// LegacyPrintf logs a formatted message under a dotted component name.
//
// Older call sites across the service layer were written against a
// printf-style logging call rather than structured zap fields; this keeps
// them working on top of the same global logger instead of forcing a
// mechanical rewrite everywhere.
func LegacyPrintf(component string, format string, args ...any) {
	S().Named(component).Infof(format, args...)
}
