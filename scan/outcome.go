package scan

import (
	"time"

	"badgedesk/directory"
)

// Result classifies an Outcome.
type Result string

const (
	ResultFound        Result = "found"
	ResultUnregistered Result = "unregistered"
	ResultNoCard       Result = "no_card"
	ResultIOError      Result = "io_error"
)

// Results that never produce an Outcome; Scan returns an error instead.
// They only show up in metrics.
const (
	ResultNotConnected   Result = "not_connected"
	ResultDirectoryError Result = "directory_error"
)

const (
	MessageFound        = "Student found"
	MessageUnregistered = "Card not registered"
)

// Outcome is the result of one scan request.
//
// Success reports whether the reader produced a card identifier, not whether
// it belongs to anyone: an unregistered card is Success with a nil Student.
// Result says which case applies.
type Outcome struct {
	CardID   string             `json:"card_id"`
	Student  *directory.Student `json:"student"`
	ScanTime time.Time          `json:"scan_time"`
	Success  bool               `json:"success"`
	Message  string             `json:"message"`
	Result   Result             `json:"result"`
}

// Observer is told about every outcome Scan produces.
type Observer interface {
	ObserveScan(Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

// ObserveScan implements Observer.
func (f ObserverFunc) ObserveScan(o Outcome) { f(o) }
