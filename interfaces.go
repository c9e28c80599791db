package sentinel

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sentinel-obs/sentinel-go/internal/protocol"
	"github.com/sentinel-obs/sentinel-go/internal/ratelimit"
)

// transactionType is the value of Event.Type for transaction events.
const transactionType = "transaction"

// checkInType is the value of Event.Type for check-in events.
const checkInType = "check_in"

// Level marks the severity of the event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// SdkInfo contains all metadata about the SDK.
type SdkInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// EventID is a hexadecimal string representing a unique uuid4 for an Event.
// An EventID must be 32 characters long, lowercase and not have any dashes.
type EventID string

// User describes the user associated with an Event. This is a plain data
// container; it carries no behavior.
type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Breadcrumb specifies an application event that occurred before an event.
type Breadcrumb struct {
	Type      string                 `json:"type,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Level     Level                  `json:"level,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Exception specifies an error that occurred.
type Exception struct {
	Type       string      `json:"type,omitempty"`
	Value      string      `json:"value,omitempty"`
	Module     string      `json:"module,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Event is the fundamental data structure that is sent to the server.
type Event struct {
	EventID     EventID                `json:"event_id,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Logger      string                 `json:"logger,omitempty"`
	Level       Level                  `json:"level,omitempty"`
	Platform    string                 `json:"platform,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	ServerName  string                 `json:"server_name,omitempty"`
	Release     string                 `json:"release,omitempty"`
	Dist        string                 `json:"dist,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Transaction string                 `json:"transaction,omitempty"`
	Fingerprint []string               `json:"fingerprint,omitempty"`
	Tags        map[string]string      `json:"tags,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	User        User                   `json:"user,omitempty"`
	Breadcrumbs []*Breadcrumb          `json:"breadcrumbs,omitempty"`
	Exception   []Exception            `json:"exception,omitempty"`
	Sdk         SdkInfo                `json:"sdk,omitempty"`

	// Type distinguishes event variants. The zero value means a plain error
	// event; "transaction" and "check_in" select the other variants.
	Type string `json:"type,omitempty"`

	// CheckIn and MonitorConfig are only set for check-in events.
	CheckIn       *CheckIn       `json:"-"`
	MonitorConfig *MonitorConfig `json:"-"`
}

// NewEvent creates a new empty Event.
func NewEvent() *Event {
	return &Event{
		Tags:  make(map[string]string),
		Extra: make(map[string]interface{}),
	}
}

// SetException appends the unwrap chain of exception to the event, with the
// most recent error last, up to maxErrorDepth errors deep.
func (e *Event) SetException(exception error, maxErrorDepth int) {
	if exception == nil {
		return
	}

	err := exception
	for i := 0; err != nil && i < maxErrorDepth; i++ {
		e.Exception = append(e.Exception, Exception{
			Value:      err.Error(),
			Type:       typeName(err),
			Stacktrace: ExtractStacktrace(err),
		})
		err = unwrap(err)
	}

	// The last exception in the list has the outermost stack trace available;
	// fall back to a synthesized one so grouping has something to work with.
	if e.Exception[len(e.Exception)-1].Stacktrace == nil {
		e.Exception[len(e.Exception)-1].Stacktrace = NewStacktrace()
	}

	// event.Exception should be sorted such that the most recent error is last
	reverse(e.Exception)
}

// MarshalJSON converts the Event to JSON. Check-in events serialize only the
// check-in payload, which has its own wire shape.
func (e *Event) MarshalJSON() ([]byte, error) {
	if e.Type == checkInType {
		return e.checkInMarshalJSON()
	}
	type event Event
	return json.Marshal((*event)(e))
}

func (e *Event) checkInMarshalJSON() ([]byte, error) {
	if e.CheckIn == nil {
		return nil, errors.New("check-in event without check-in payload")
	}
	checkIn := serializedCheckIn{
		CheckInID:     string(e.CheckIn.ID),
		MonitorSlug:   e.CheckIn.MonitorSlug,
		Status:        e.CheckIn.Status,
		Duration:      e.CheckIn.Duration.Seconds(),
		Release:       e.Release,
		Environment:   e.Environment,
		MonitorConfig: e.MonitorConfig,
	}
	return json.Marshal(checkIn)
}

// dataCategory returns the rate limiting and discard accounting category the
// event belongs to. Unrecognized event types map to the default category.
func (e *Event) dataCategory() ratelimit.Category {
	switch e.Type {
	case "":
		return ratelimit.CategoryError
	case transactionType:
		return ratelimit.CategoryTransaction
	case checkInType:
		return ratelimit.CategoryMonitor
	default:
		return ratelimit.CategoryDefault
	}
}

// envelopeItemType returns the envelope item type carrying the event.
func (e *Event) envelopeItemType() protocol.EnvelopeItemType {
	switch e.Type {
	case transactionType:
		return protocol.EnvelopeItemTypeTransaction
	case checkInType:
		return protocol.EnvelopeItemTypeCheckIn
	default:
		return protocol.EnvelopeItemTypeEvent
	}
}

// EventHint contains information that can be associated with an Event.
type EventHint struct {
	Data              interface{}
	EventID           string
	OriginalException error
}

func reverse(a []Exception) {
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}
}
