package sentinel

import "time"

type checkInScheduleType string

const (
	checkInScheduleTypeCrontab  checkInScheduleType = "crontab"
	checkInScheduleTypeInterval checkInScheduleType = "interval"
)

// MonitorSchedule describes when a monitored job is expected to run.
type MonitorSchedule struct {
	Type checkInScheduleType `json:"type"`
	// Value specifies the crontab expression or the interval count, depending
	// on Type.
	Value interface{} `json:"value"`
	// Unit is only set for interval schedules.
	Unit MonitorScheduleUnit `json:"unit,omitempty"`
}

// CrontabSchedule defines the monitor schedule with a crontab expression, for
// example "* * * * *" for every minute.
func CrontabSchedule(expression string) MonitorSchedule {
	return MonitorSchedule{
		Type:  checkInScheduleTypeCrontab,
		Value: expression,
	}
}

// IntervalSchedule defines the monitor schedule with an interval, for example
// IntervalSchedule(2, sentinel.MonitorScheduleUnitHour) for every two hours.
func IntervalSchedule(value int, unit MonitorScheduleUnit) MonitorSchedule {
	return MonitorSchedule{
		Type:  checkInScheduleTypeInterval,
		Value: value,
		Unit:  unit,
	}
}

// MonitorScheduleUnit is the unit of an interval schedule.
type MonitorScheduleUnit string

const (
	MonitorScheduleUnitMinute MonitorScheduleUnit = "minute"
	MonitorScheduleUnitHour   MonitorScheduleUnit = "hour"
	MonitorScheduleUnitDay    MonitorScheduleUnit = "day"
	MonitorScheduleUnitWeek   MonitorScheduleUnit = "week"
	MonitorScheduleUnitMonth  MonitorScheduleUnit = "month"
	MonitorScheduleUnitYear   MonitorScheduleUnit = "year"
)

// MonitorConfig configures the server-side monitor associated with a check-in
// slug. It is transmitted with check-ins so monitors can be upserted.
type MonitorConfig struct {
	Schedule MonitorSchedule `json:"schedule,omitempty"`
	// CheckInMargin is the allowed margin of minutes after the expected
	// check-in time that the monitor will not be considered missed for.
	CheckInMargin int64 `json:"checkin_margin,omitempty"`
	// MaxRuntime is the allowed duration in minutes that the monitor may be
	// in progress for before being considered failed due to timeout.
	MaxRuntime int64 `json:"max_runtime,omitempty"`
	// Timezone is a tz database string representing the timezone which the
	// monitor's execution schedule is in, for example "America/Chicago".
	Timezone string `json:"timezone,omitempty"`
}

// CheckInStatus is the lifecycle state a check-in reports.
type CheckInStatus string

const (
	CheckInStatusInProgress CheckInStatus = "in_progress"
	CheckInStatusOK         CheckInStatus = "ok"
	CheckInStatusError      CheckInStatus = "error"
)

// CheckIn reports the lifecycle of a single execution of a monitored job.
type CheckIn struct {
	// ID is a unique identifier of this check-in's lifecycle. In-progress and
	// closing check-ins of the same run share the ID.
	ID EventID `json:"check_in_id"`
	// MonitorSlug identifies the monitor this check-in belongs to.
	MonitorSlug string `json:"monitor_slug"`
	// Status is the state reported by this check-in.
	Status CheckInStatus `json:"status"`
	// Duration is how long the job ran, reported on closing check-ins.
	Duration time.Duration `json:"duration,omitempty"`
}

// serializedCheckIn is the wire shape of a check-in event; duration is
// transmitted in seconds.
type serializedCheckIn struct {
	CheckInID     string         `json:"check_in_id"`
	MonitorSlug   string         `json:"monitor_slug"`
	Status        CheckInStatus  `json:"status"`
	Duration      float64        `json:"duration,omitempty"`
	Release       string         `json:"release,omitempty"`
	Environment   string         `json:"environment,omitempty"`
	MonitorConfig *MonitorConfig `json:"monitor_config,omitempty"`
}
