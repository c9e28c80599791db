package sentinel

import (
	"sync"
	"time"
)

var (
	globalMu     sync.RWMutex
	globalClient *Client
)

// Init initializes the process-wide client used by the package-level capture
// functions.
func Init(options ClientOptions) error {
	client, err := NewClient(options)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalClient != nil {
		globalClient.Close()
	}
	globalClient = client
	return nil
}

// CurrentClient returns the process-wide client, or nil before Init.
func CurrentClient() *Client {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalClient
}

// CaptureException captures an error on the process-wide client.
func CaptureException(exception error) *EventID {
	client := CurrentClient()
	if client == nil {
		return nil
	}
	return client.CaptureException(exception, nil)
}

// CaptureMessage captures an arbitrary message on the process-wide client.
func CaptureMessage(message string) *EventID {
	client := CurrentClient()
	if client == nil {
		return nil
	}
	return client.CaptureMessage(message, nil)
}

// CaptureEvent captures an event on the process-wide client.
func CaptureEvent(event *Event) *EventID {
	client := CurrentClient()
	if client == nil {
		return nil
	}
	return client.CaptureEvent(event, nil)
}

// CaptureCheckIn captures a monitor check-in on the process-wide client.
func CaptureCheckIn(checkIn *CheckIn, monitorConfig *MonitorConfig) *EventID {
	client := CurrentClient()
	if client == nil {
		return nil
	}
	return client.CaptureCheckIn(checkIn, monitorConfig)
}

// Flush waits until the process-wide client delivered everything enqueued
// before the call, blocking at most the given timeout. It returns false if
// the timeout was reached.
//
// Call Flush before terminating the program to avoid unintentionally dropping
// events.
func Flush(timeout time.Duration) bool {
	client := CurrentClient()
	if client == nil {
		return true
	}
	return client.Flush(timeout)
}

// Close drains and shuts down the process-wide client.
func Close() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalClient != nil {
		globalClient.Close()
		globalClient = nil
	}
}
