package telemetry

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/bolt/v3"
)

// LogHandler returns a handler that writes every event to the logger.
// Error events are logged at error level, everything else at info.
func LogHandler(l *bolt.Logger) Handler {
	return func(e Event) {
		if e.Type == EventError {
			ev := l.Error()
			for _, k := range sortedKeys(e.Data) {
				if err, ok := e.Data[k].(error); ok {
					ev = ev.Err(err)
					continue
				}
				ev = ev.Str(k, fmt.Sprint(e.Data[k]))
			}
			ev.Msg("store error")
			return
		}

		ev := l.Info().Str("event", string(e.Type))
		for _, k := range sortedKeys(e.Data) {
			switch v := e.Data[k].(type) {
			case int:
				ev = ev.Int(k, v)
			case string:
				ev = ev.Str(k, v)
			default:
				ev = ev.Str(k, fmt.Sprint(v))
			}
		}
		ev.Msg("store event")
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
