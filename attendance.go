package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"badgedesk/scan"
)

type attendanceStore interface {
	RecordAttendance(ctx context.Context, studentID string, at time.Time) (bool, error)
}

// attendanceRecorder marks active students present when their card is found.
type attendanceRecorder struct {
	store attendanceStore
}

func (a *attendanceRecorder) ObserveScan(o scan.Outcome) {
	if o.Result != scan.ResultFound || o.Student == nil || !o.Student.IsActive {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fields := log.Fields{"student": o.Student.ID, "name": o.Student.FullName()}
	added, err := a.store.RecordAttendance(ctx, o.Student.ID, o.ScanTime)
	switch {
	case err != nil:
		log.WithFields(fields).Warnf("Record attendance: %v", err)
	case added:
		log.WithFields(fields).Info("Attendance recorded")
	default:
		log.WithFields(fields).Debug("Already checked in today")
	}
}
