package models

const (
	LogLineKindData    = "data"
	LogLineKindControl = "control"
)

// LogLine is one entry in a workflow's JSON-lines log file. Data
// lines carry step output; control lines mark step transitions.
type LogLine struct {
	Kind string `json:"kind"`
	Idx  int    `json:"idx"`

	// data lines
	Stream string `json:"stream,omitempty"`
	Data   string `json:"data,omitempty"`

	// control lines
	Step   string     `json:"step,omitempty"`
	Status StepStatus `json:"status,omitempty"`
}

func NewDataLogLine(idx int, data, stream string) LogLine {
	return LogLine{
		Kind:   LogLineKindData,
		Idx:    idx,
		Stream: stream,
		Data:   data,
	}
}

func NewControlLogLine(idx int, step Step, status StepStatus) LogLine {
	return LogLine{
		Kind:   LogLineKindControl,
		Idx:    idx,
		Step:   step.Name,
		Status: status,
	}
}
