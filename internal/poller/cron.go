package poller

import (
	"fmt"

	"github.com/pfrederiksen/wca-events/internal/logger"
)

// CronLogger routes scheduler messages to the structured logger. Routine
// scheduler chatter goes to DEBUG.
type CronLogger struct{}

// Info implements cron.Logger.
func (CronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, toFields(keysAndValues))
}

// Error implements cron.Logger.
func (CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, toFields(keysAndValues), err)
}

func toFields(keysAndValues []interface{}) logger.Fields {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make(logger.Fields, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			fields[key] = keysAndValues[i+1]
		} else {
			fields[key] = nil
		}
	}
	return fields
}
