// Package model defines the domain types shared across sitewatch's core
// subsystems: Target, Check, DowntimeWindow, DebugSession, NetworkEvent and
// ConsoleMessage. References between them are unidirectional (child holds
// parent id, never the reverse) so the store layer can cascade deletes
// without walking an in-memory object graph.
package model

import "time"

// ErrorKind classifies why a Check observed a target as unavailable.
type ErrorKind string

const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindConnect    ErrorKind = "connect"
	ErrorKindProtocol   ErrorKind = "protocol"
	ErrorKindNavigation ErrorKind = "navigation"
	ErrorKindUnexpected ErrorKind = "unexpected"
)

// Target is a monitored endpoint.
type Target struct {
	ID                  int64
	URL                 string
	Name                string
	IntervalSeconds     int
	Enabled             bool
	ConsecutiveFailures int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Check is one probe result. Checks are append-only.
type Check struct {
	ID             int64
	TargetID       int64
	Timestamp      time.Time
	Available      bool
	Status         *int
	ResponseTimeMs *float64
	ErrorKind      ErrorKind
	ErrorDetail    string
}

// DowntimeWindow is a contiguous unavailability interval for one Target.
// EndedAt is nil while the window is open.
type DowntimeWindow struct {
	ID        int64
	TargetID  int64
	StartedAt time.Time
	EndedAt   *time.Time
}

// Open reports whether the window has not yet been closed.
func (w DowntimeWindow) Open() bool { return w.EndedAt == nil }

// Duration returns the window's extent, clamping an open window to "until"
// and clamping a negative span (clock skew) to zero.
func (w DowntimeWindow) Duration(until time.Time) time.Duration {
	end := until
	if w.EndedAt != nil {
		end = *w.EndedAt
	}
	d := end.Sub(w.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// DebugSessionStatus is the lifecycle state of a DebugSession.
type DebugSessionStatus string

const (
	DebugSessionPending DebugSessionStatus = "pending"
	DebugSessionActive  DebugSessionStatus = "active"
	DebugSessionStopped DebugSessionStatus = "stopped"
	DebugSessionFailed  DebugSessionStatus = "failed"
	DebugSessionTimeout DebugSessionStatus = "timeout"
)

// Terminal reports whether the status is one of the session's terminal states.
func (s DebugSessionStatus) Terminal() bool {
	switch s {
	case DebugSessionStopped, DebugSessionFailed, DebugSessionTimeout:
		return true
	default:
		return false
	}
}

// DebugSession is a browser-backed capture lifecycle for one Target.
type DebugSession struct {
	ID                   int64
	TargetID             int64
	Status               DebugSessionStatus
	StartedAt            *time.Time
	StoppedAt            *time.Time
	DurationLimitSeconds *int
	ErrorDetail          string
	CreatedAt            time.Time
}

// NetworkEventKind distinguishes a captured request from its response.
type NetworkEventKind string

const (
	NetworkEventRequest  NetworkEventKind = "request"
	NetworkEventResponse NetworkEventKind = "response"
)

// ResourceType is the kind of resource a NetworkEvent's request fetched.
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceImage      ResourceType = "image"
	ResourceScript     ResourceType = "script"
	ResourceXHR        ResourceType = "xhr"
	ResourceFetch      ResourceType = "fetch"
	ResourceOther      ResourceType = "other"
)

// NetworkEvent is a single request or response observation within a DebugSession.
type NetworkEvent struct {
	ID              int64
	SessionID       int64
	Kind            NetworkEventKind
	URL             string
	Method          string
	Status          *int
	RequestHeaders  string // opaque JSON
	ResponseHeaders string // opaque JSON
	RequestBody     string
	ResponseBody    string
	ResourceType    ResourceType
	Timestamp       time.Time
	DurationMs      *float64
}

// ConsoleLevel is the severity of a captured console diagnostic.
type ConsoleLevel string

const (
	ConsoleError   ConsoleLevel = "error"
	ConsoleWarning ConsoleLevel = "warning"
	ConsoleInfo    ConsoleLevel = "info"
	ConsoleLog     ConsoleLevel = "log"
)

// ConsoleMessage is one console-level diagnostic captured from the page.
// Only ConsoleError and ConsoleWarning are ever persisted (spec.md §3).
type ConsoleMessage struct {
	ID        int64
	SessionID int64
	Level     ConsoleLevel
	Message   string
	Timestamp time.Time
}
