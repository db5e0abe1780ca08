package events

// Type identifies an instrument push event.
type Type string

// Instrument event types.
const (
	TypeWaitingForUserAction  Type = "waiting_for_user_action"
	TypeOperationProgress     Type = "operation_progress"
	TypeMaintenanceResult     Type = "maintenance_result"
	TypeProcedureAccepted     Type = "procedure_accepted"
	TypeProcedureRejected     Type = "procedure_rejected"
	TypeDetailedStatusChanged Type = "detailed_status_changed"
)

// Types returns every event type the router understands.
func Types() []Type {
	return []Type{
		TypeWaitingForUserAction,
		TypeOperationProgress,
		TypeMaintenanceResult,
		TypeProcedureAccepted,
		TypeProcedureRejected,
		TypeDetailedStatusChanged,
	}
}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// HealthState is the coarse health of an instrument as reported in
// detailed_status_changed events.
type HealthState string

// Instrument health states.
const (
	HealthRunning     HealthState = "RUNNING"
	HealthNotRunning  HealthState = "NOT_RUNNING"
	HealthPaused      HealthState = "PAUSED"
	HealthError       HealthState = "ERROR"
	HealthMaintenance HealthState = "MAINTENANCE"
	HealthOffline     HealthState = "OFFLINE"
)

// Event is a decoded instrument push event.
type Event interface {
	Type() Type

	// Instrument returns the id of the instrument the event is about.
	Instrument() string
}

// WaitingForUserAction reports that an instrument is blocked on the operator.
type WaitingForUserAction struct {
	InstrumentID string `json:"instrumentId"`
	Action       string `json:"action,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (WaitingForUserAction) Type() Type           { return TypeWaitingForUserAction }
func (e WaitingForUserAction) Instrument() string { return e.InstrumentID }

// OperationProgress reports progress of (or completion of) the current operation.
type OperationProgress struct {
	InstrumentID string `json:"instrumentId"`
	Operation    string `json:"operation,omitempty"`
	Progress     int    `json:"progress"`
	Complete     bool   `json:"complete"`
}

func (OperationProgress) Type() Type           { return TypeOperationProgress }
func (e OperationProgress) Instrument() string { return e.InstrumentID }

// InstrumentRef is the nested instrument object carried by maintenance results.
type InstrumentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// MaintenanceResult reports the outcome of a maintenance procedure.
type MaintenanceResult struct {
	Source    InstrumentRef `json:"instrument"`
	Procedure string        `json:"procedure,omitempty"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
}

func (MaintenanceResult) Type() Type           { return TypeMaintenanceResult }
func (e MaintenanceResult) Instrument() string { return e.Source.ID }

// ProcedureAccepted reports that a QC procedure passed.
type ProcedureAccepted struct {
	InstrumentID string `json:"instrumentId"`
	Procedure    string `json:"procedure,omitempty"`
}

func (ProcedureAccepted) Type() Type           { return TypeProcedureAccepted }
func (e ProcedureAccepted) Instrument() string { return e.InstrumentID }

// ProcedureRejected reports that a QC procedure failed.
type ProcedureRejected struct {
	InstrumentID string `json:"instrumentId"`
	Procedure    string `json:"procedure,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (ProcedureRejected) Type() Type           { return TypeProcedureRejected }
func (e ProcedureRejected) Instrument() string { return e.InstrumentID }

// DetailedStatusChanged reports a new instrument health state.
type DetailedStatusChanged struct {
	InstrumentID string      `json:"instrumentId"`
	HealthState  HealthState `json:"healthState"`
	Detail       string      `json:"detail,omitempty"`
}

func (DetailedStatusChanged) Type() Type           { return TypeDetailedStatusChanged }
func (e DetailedStatusChanged) Instrument() string { return e.InstrumentID }

// Logger defines the logging interface used by the router and bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
