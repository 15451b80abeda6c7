package directory

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DefaultPath is used when Config.Path is empty.
const DefaultPath = "badgedesk.db"

// Config holds directory storage settings.
type Config struct {
	Path   string       `yaml:"path"`
	Roster RosterConfig `yaml:"roster"`
}

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT,
	phone TEXT,
	academic_level TEXT NOT NULL,
	rfid_card TEXT UNIQUE,
	parent_name TEXT NOT NULL,
	parent_phone TEXT NOT NULL,
	notes TEXT,
	enrollment_date TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS attendance (
	id TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES students (id) ON DELETE CASCADE,
	date TEXT NOT NULL,
	status TEXT NOT NULL,
	check_in_time TEXT,
	created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_student_date ON attendance (student_id, date);
`

const studentColumns = `id, first_name, last_name, email, phone, academic_level, rfid_card,
	parent_name, parent_phone, notes, enrollment_date, is_active, created_at, updated_at`

// Store is the SQLite-backed student directory.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the directory database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create directory database folder failed")
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite directory failed")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create directory schema failed")
	}

	log.WithField("path", path).Debug("Student directory opened")
	return &Store{db: db, now: time.Now}, nil
}

// dsn applies the pragmas to every pooled connection.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListStudents returns every student, newest first.
func (s *Store) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+studentColumns+" FROM students ORDER BY created_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "query students failed")
	}
	defer rows.Close()

	students := []Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate students failed")
	}
	return students, nil
}

// GetStudent returns the student with id.
func (s *Store) GetStudent(ctx context.Context, id string) (Student, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = ?", id)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return st, err
}

// CreateStudent inserts st. An empty ID gets a fresh UUID and the
// timestamps are set by the store.
func (s *Store) CreateStudent(ctx context.Context, st Student) (Student, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.RFIDCard = strings.TrimSpace(st.RFIDCard)
	now := s.now().UTC()
	if st.EnrollmentDate.IsZero() {
		st.EnrollmentDate = now
	}
	st.CreatedAt = now
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.FirstName, st.LastName, nullable(st.Email), nullable(st.Phone),
		st.AcademicLevel, nullable(st.RFIDCard), st.ParentName, st.ParentPhone,
		nullable(st.Notes), formatTime(st.EnrollmentDate), st.IsActive,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt))
	if err != nil {
		return Student{}, classifyWrite(err, "insert student failed")
	}
	return st, nil
}

// UpdateStudent overwrites the record with st.ID. CreatedAt is kept.
func (s *Store) UpdateStudent(ctx context.Context, st Student) (Student, error) {
	st.RFIDCard = strings.TrimSpace(st.RFIDCard)
	st.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE students SET
		first_name = ?, last_name = ?, email = ?, phone = ?, academic_level = ?,
		rfid_card = ?, parent_name = ?, parent_phone = ?, notes = ?,
		enrollment_date = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		st.FirstName, st.LastName, nullable(st.Email), nullable(st.Phone), st.AcademicLevel,
		nullable(st.RFIDCard), st.ParentName, st.ParentPhone, nullable(st.Notes),
		formatTime(st.EnrollmentDate), st.IsActive, formatTime(st.UpdatedAt),
		st.ID)
	if err != nil {
		return Student{}, classifyWrite(err, "update student failed")
	}
	if err := expectOne(res, st.ID); err != nil {
		return Student{}, err
	}
	return s.GetStudent(ctx, st.ID)
}

// DeleteStudent removes the student and their attendance rows.
func (s *Store) DeleteStudent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete student failed")
	}
	return expectOne(res, id)
}

// BindCard binds card to the student, replacing any previous card. An
// empty card unbinds. Binding a card held by someone else is ErrCardInUse.
func (s *Store) BindCard(ctx context.Context, id, card string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE students SET rfid_card = ?, updated_at = ? WHERE id = ?",
		nullable(strings.TrimSpace(card)), formatTime(s.now().UTC()), id)
	if err != nil {
		return classifyWrite(err, "bind card failed")
	}
	return expectOne(res, id)
}

// RecordAttendance marks the student present for the local day of at.
// It reports false when the student already has a row for that day.
func (s *Store) RecordAttendance(ctx context.Context, studentID string, at time.Time) (bool, error) {
	local := at.Local()
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO attendance
		(id, student_id, date, status, check_in_time, created_at)
		VALUES (?, ?, ?, 'present', ?, ?)`,
		uuid.NewString(), studentID, local.Format("2006-01-02"), local.Format("15:04:05"),
		formatTime(s.now().UTC()))
	if err != nil {
		return false, errors.Wrap(err, "insert attendance failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "attendance rows affected failed")
	}
	return n == 1, nil
}

// AttendanceOn returns the attendance rows for a YYYY-MM-DD day.
func (s *Store) AttendanceOn(ctx context.Context, date string) ([]Attendance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, student_id, date, status, check_in_time, created_at
		FROM attendance WHERE date = ? ORDER BY check_in_time`, date)
	if err != nil {
		return nil, errors.Wrap(err, "query attendance failed")
	}
	defer rows.Close()

	var out []Attendance
	for rows.Next() {
		var a Attendance
		var checkIn sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Date, &a.Status, &checkIn, &created); err != nil {
			return nil, errors.Wrap(err, "scan attendance failed")
		}
		a.CheckInTime = checkIn.String
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate attendance failed")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (Student, error) {
	var st Student
	var email, phone, card, notes sql.NullString
	var enrolled, created, updated string
	err := row.Scan(&st.ID, &st.FirstName, &st.LastName, &email, &phone, &st.AcademicLevel, &card,
		&st.ParentName, &st.ParentPhone, &notes, &enrolled, &st.IsActive, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, err
		}
		return Student{}, errors.Wrap(err, "scan student failed")
	}
	st.Email, st.Phone, st.RFIDCard, st.Notes = email.String, phone.String, card.String, notes.String

	if st.EnrollmentDate, err = parseTime(enrolled); err != nil {
		return Student{}, err
	}
	if st.CreatedAt, err = parseTime(created); err != nil {
		return Student{}, err
	}
	if st.UpdatedAt, err = parseTime(updated); err != nil {
		return Student{}, err
	}
	return st, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected failed")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func classifyWrite(err error, msg string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed: students.rfid_card") {
		return errors.Wrap(ErrCardInUse, msg)
	}
	return errors.Wrap(err, msg)
}

// nullable stores empty optional text as NULL so the UNIQUE rfid_card
// column admits any number of students without a card.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q failed", s)
	}
	return t, nil
}
