package directory_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgedesk/directory"
)

func openStore(t *testing.T) *directory.Store {
	t.Helper()
	s, err := directory.Open(filepath.Join(t.TempDir(), "data", "students.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newStudent(first, last, card string) directory.Student {
	return directory.Student{
		FirstName:     first,
		LastName:      last,
		AcademicLevel: "Grade 5",
		RFIDCard:      card,
		ParentName:    "Parent " + last,
		ParentPhone:   "555-0100",
		IsActive:      true,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	created, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", "A1B2C3"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.EnrollmentDate.IsZero())

	got, err := s.GetStudent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)
	assert.Equal(t, "A1B2C3", got.RFIDCard)
	assert.Empty(t, got.Email)
	assert.True(t, got.IsActive)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = s.GetStudent(ctx, "missing")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	list, err := s.ListStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	first, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", ""))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateStudent(ctx, newStudent("Alan", "Turing", ""))
	require.NoError(t, err)

	list, err = s.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestStoreCardUniqueness(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	ada, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", "A1B2C3"))
	require.NoError(t, err)

	// Any number of students may have no card.
	_, err = s.CreateStudent(ctx, newStudent("Alan", "Turing", ""))
	require.NoError(t, err)
	alan2, err := s.CreateStudent(ctx, newStudent("Alan", "Kay", ""))
	require.NoError(t, err)

	_, err = s.CreateStudent(ctx, newStudent("Grace", "Hopper", "A1B2C3"))
	assert.ErrorIs(t, err, directory.ErrCardInUse)

	err = s.BindCard(ctx, alan2.ID, "A1B2C3")
	assert.ErrorIs(t, err, directory.ErrCardInUse)

	require.NoError(t, s.BindCard(ctx, ada.ID, ""))
	require.NoError(t, s.BindCard(ctx, alan2.ID, " A1B2C3 "))

	got, err := s.GetStudent(ctx, alan2.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", got.RFIDCard)

	got, err = s.GetStudent(ctx, ada.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RFIDCard)

	assert.ErrorIs(t, s.BindCard(ctx, "missing", "FF"), directory.ErrNotFound)
}

func TestStoreTrimsCardOnCreate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	ada, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", " A1B2C3\t"))
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", ada.RFIDCard)

	got, err := s.GetStudent(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", got.RFIDCard)

	st, err := directory.NewResolver(s).Resolve(ctx, "A1B2C3")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, ada.ID, st.ID)

	blank, err := s.CreateStudent(ctx, newStudent("Alan", "Turing", "   "))
	require.NoError(t, err)
	assert.Empty(t, blank.RFIDCard)
}

func TestStoreUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	st, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", "A1"))
	require.NoError(t, err)

	st.Email = "ada@example.com"
	st.IsActive = false
	updated, err := s.UpdateStudent(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", updated.Email)
	assert.False(t, updated.IsActive)
	assert.True(t, st.CreatedAt.Equal(updated.CreatedAt))

	_, err = s.UpdateStudent(ctx, directory.Student{ID: "missing"})
	assert.ErrorIs(t, err, directory.ErrNotFound)

	require.NoError(t, s.DeleteStudent(ctx, st.ID))
	assert.ErrorIs(t, s.DeleteStudent(ctx, st.ID), directory.ErrNotFound)
}

func TestStoreRecordAttendanceOncePerDay(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	st, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", "A1"))
	require.NoError(t, err)

	morning := time.Date(2026, 3, 2, 8, 15, 0, 0, time.Local)
	added, err := s.RecordAttendance(ctx, st.ID, morning)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.RecordAttendance(ctx, st.ID, morning.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = s.RecordAttendance(ctx, st.ID, morning.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, added)

	rows, err := s.AttendanceOn(ctx, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, st.ID, rows[0].StudentID)
	assert.Equal(t, "present", rows[0].Status)
	assert.Equal(t, "08:15:00", rows[0].CheckInTime)

	_, err = s.RecordAttendance(ctx, "missing", morning)
	assert.Error(t, err)
}

func TestStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "students.db")

	s, err := directory.Open(path)
	require.NoError(t, err)
	st, err := s.CreateStudent(ctx, newStudent("Ada", "Lovelace", "A1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = directory.Open(path)
	require.NoError(t, err)
	defer s.Close()

	r := directory.NewResolver(s)
	found, err := r.Resolve(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, st.ID, found.ID)
}
