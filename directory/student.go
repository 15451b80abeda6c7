// Package directory is the student directory: the persisted cardholder
// records that scanned cards are resolved against.
package directory

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("student not found")
	ErrCardInUse   = errors.New("card already bound to another student")
	ErrUnavailable = errors.New("directory unavailable")
)

// Student is a cardholder record. RFIDCard is empty when no card is bound.
type Student struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	AcademicLevel  string    `json:"academic_level"`
	RFIDCard       string    `json:"rfid_card,omitempty"`
	ParentName     string    `json:"parent_name"`
	ParentPhone    string    `json:"parent_phone"`
	Notes          string    `json:"notes,omitempty"`
	EnrollmentDate time.Time `json:"enrollment_date"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FullName returns "First Last".
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Attendance is one check-in row.
type Attendance struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Date        string    `json:"date"` // YYYY-MM-DD, local time
	Status      string    `json:"status"`
	CheckInTime string    `json:"check_in_time,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
