package logging

import "github.com/rs/zerolog"

// GormWriter routes gorm's logger output (slow queries, errors) into zerolog.
type GormWriter struct {
	Log zerolog.Logger
}

func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Log.Warn().Msgf(format, args...)
}
