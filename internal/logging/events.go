package logging

import (
	"strconv"

	log "github.com/sirupsen/logrus"
)

// EventID groups log lines by service activity so operators can filter the
// event log the same way regardless of which job wrote the line.
type EventID int

const (
	EventInitialising     EventID = 1000
	EventStarting         EventID = 1001
	EventRunning          EventID = 1002
	EventContinuing       EventID = 1003
	EventPausing          EventID = 1004
	EventStopping         EventID = 1005
	EventMonitoring       EventID = 2000
	EventExecutingService EventID = 3000
	EventQueryingData     EventID = 4000
	EventStagingDatafile  EventID = 5000
)

var eventNames = map[EventID]string{
	EventInitialising:     "INITIALISING",
	EventStarting:         "STARTING",
	EventRunning:          "RUNNING",
	EventContinuing:       "CONTINUING",
	EventPausing:          "PAUSING",
	EventStopping:         "STOPPING",
	EventMonitoring:       "MONITORING",
	EventExecutingService: "EXECUTING_SERVICE",
	EventQueryingData:     "QUERYING_DATA",
	EventStagingDatafile:  "STAGING_DATAFILE",
}

func (e EventID) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "EVENT_" + strconv.Itoa(int(e))
}

// WithEvent tags entry with the event id and its name.
func WithEvent(entry *log.Entry, id EventID) *log.Entry {
	return entry.WithFields(log.Fields{
		"event_id": int(id),
		"event":    id.String(),
	})
}
