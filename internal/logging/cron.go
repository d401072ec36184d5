package logging

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronLogger adapts zerolog to cron.Logger so skipped and panicking jobs
// show up in the same stream as everything else.
type CronLogger struct {
	Log zerolog.Logger
}

var _ cron.Logger = CronLogger{}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Log.Debug().Fields(fields(keysAndValues)).Msg(msg)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Log.Error().Err(err).Fields(fields(keysAndValues)).Msg(msg)
}

func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[k] = kv[i+1]
	}
	return out
}
