package sentinel

import (
	"sync"
	"time"
)

// JobObserver is the callback surface the pipeline exposes to scheduler
// integrations. Host applications register an implementation with their cron
// or job framework of choice and translate job lifecycle events into calls on
// it; the pipeline itself knows nothing about any particular scheduler.
type JobObserver interface {
	// OnJobStart reports that a run of the named monitor began and returns
	// the check-in id identifying the run.
	OnJobStart(monitorSlug string) *EventID
	// OnJobStop closes the run started under checkInID with an ok or error
	// status.
	OnJobStop(checkInID *EventID, monitorSlug string, ok bool)
	// OnJobException closes the run with an error status and captures the
	// causing error as its own event.
	OnJobException(checkInID *EventID, monitorSlug string, err error)
}

// JobMonitor translates job lifecycle callbacks into check-in captures on a
// Client. It implements JobObserver.
type JobMonitor struct {
	client *Client
	config *MonitorConfig

	mu      sync.Mutex
	started map[EventID]time.Time
}

var _ JobObserver = (*JobMonitor)(nil)

// NewJobMonitor returns a JobMonitor capturing check-ins through client.
// config may be nil if the monitor is configured server-side.
func NewJobMonitor(client *Client, config *MonitorConfig) *JobMonitor {
	return &JobMonitor{
		client:  client,
		config:  config,
		started: make(map[EventID]time.Time),
	}
}

// OnJobStart captures an in-progress check-in and returns its id.
func (m *JobMonitor) OnJobStart(monitorSlug string) *EventID {
	id := m.client.CaptureCheckIn(&CheckIn{
		MonitorSlug: monitorSlug,
		Status:      CheckInStatusInProgress,
	}, m.config)
	if id != nil {
		m.mu.Lock()
		m.started[*id] = time.Now()
		m.mu.Unlock()
	}
	return id
}

// OnJobStop captures the closing check-in for the run started under
// checkInID.
func (m *JobMonitor) OnJobStop(checkInID *EventID, monitorSlug string, ok bool) {
	status := CheckInStatusOK
	if !ok {
		status = CheckInStatusError
	}
	m.capture(checkInID, monitorSlug, status)
}

// OnJobException captures the causing error and closes the run with an error
// status.
func (m *JobMonitor) OnJobException(checkInID *EventID, monitorSlug string, err error) {
	if err != nil {
		m.client.CaptureException(err, &EventHint{OriginalException: err})
	}
	m.capture(checkInID, monitorSlug, CheckInStatusError)
}

func (m *JobMonitor) capture(checkInID *EventID, monitorSlug string, status CheckInStatus) {
	checkIn := &CheckIn{
		MonitorSlug: monitorSlug,
		Status:      status,
	}
	if checkInID != nil {
		checkIn.ID = *checkInID
		m.mu.Lock()
		if startedAt, ok := m.started[*checkInID]; ok {
			checkIn.Duration = time.Since(startedAt)
			delete(m.started, *checkInID)
		}
		m.mu.Unlock()
	}
	m.client.CaptureCheckIn(checkIn, m.config)
}
