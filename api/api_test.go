package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgedesk/api"
	"badgedesk/directory"
	"badgedesk/metrics"
	"badgedesk/reader"
	"badgedesk/reader/readertest"
	"badgedesk/registry"
	"badgedesk/scan"
)

type students struct {
	list []directory.Student
	err  error
}

func (s students) ListStudents(context.Context) ([]directory.Student, error) { return s.list, s.err }

type history struct {
	got   int
	items []scan.Outcome
}

func (h *history) Recent(limit int) ([]scan.Outcome, error) {
	h.got = limit
	return h.items, nil
}

type fixture struct {
	driver  *readertest.Driver
	history *history
	router  http.Handler
}

func newFixture(t *testing.T, dir students) *fixture {
	t.Helper()
	f := &fixture{
		driver:  &readertest.Driver{Respond: readertest.Reply("A1B2C3\r\n")},
		history: &history{},
	}

	reg := prometheus.NewRegistry()
	svc := scan.New(registry.New(f.driver), reader.DefaultProtocol(), directory.NewResolver(dir))
	svc.SetMetrics(metrics.New(reg))
	svc.SetPortLister(reader.EnumeratorFunc(func() ([]reader.PortInfo, error) {
		return []reader.PortInfo{{Name: "/dev/ttyUSB0", USB: true}, {Name: "/dev/ttyS0"}}, nil
	}))

	f.router = api.New(svc, f.history, dir, reg).Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

var ada = directory.Student{ID: "s1", FirstName: "Ada", LastName: "Lovelace", RFIDCard: "A1B2C3", IsActive: true}

func TestReaderLifecycle(t *testing.T) {
	f := newFixture(t, students{list: []directory.Student{ada}})

	rec := f.do(t, http.MethodGet, "/api/ports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"/dev/ttyUSB0"}, decode[map[string][]string](t, rec)["ports"])

	rec = f.do(t, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "reader not connected", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/api/reader/connect", map[string]any{"port": "/dev/ttyUSB0", "baud_rate": 9600})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Connected to RFID reader on /dev/ttyUSB0", decode[map[string]string](t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/api/reader/connect", map[string]any{"port": "/dev/ttyUSB1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registry.State{Connected: true, Port: "/dev/ttyUSB0", Baud: 9600}, decode[registry.State](t, rec))

	rec = f.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[scan.Outcome](t, rec)
	assert.True(t, out.Success)
	assert.Equal(t, "A1B2C3", out.CardID)
	assert.Equal(t, scan.ResultFound, out.Result)
	require.NotNil(t, out.Student)
	assert.Equal(t, "s1", out.Student.ID)

	rec = f.do(t, http.MethodPost, "/api/reader/disconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RFID reader disconnected", decode[map[string]string](t, rec)["message"])
	assert.True(t, f.driver.Last().Closed())
}

func TestConnectValidation(t *testing.T) {
	f := newFixture(t, students{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `{"port":`, http.StatusBadRequest},
		{"missing port", `{"baud_rate":9600}`, http.StatusBadRequest},
		{"negative baud", `{"port":"COM3","baud_rate":-1}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/reader/connect", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
	assert.Zero(t, f.driver.Opens())
}

func TestConnectFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, students{})
	f.driver.OpenErr = errors.New("permission denied")

	rec := f.do(t, http.MethodPost, "/api/reader/connect", map[string]any{"port": "/dev/ttyUSB0"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "permission denied")
}

func TestScanDirectoryUnavailable(t *testing.T) {
	f := newFixture(t, students{err: errors.New("database is locked")})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/reader/connect", map[string]any{"port": "COM3"}).Code)

	rec := f.do(t, http.MethodPost, "/api/scan", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecentScans(t *testing.T) {
	f := newFixture(t, students{})
	f.history.items = []scan.Outcome{{CardID: "B2"}, {CardID: "A1"}}

	rec := f.do(t, http.MethodGet, "/api/scans?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.history.got)
	assert.Len(t, decode[map[string][]scan.Outcome](t, rec)["scans"], 2)

	rec = f.do(t, http.MethodGet, "/api/scans?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentsAndMetrics(t *testing.T) {
	f := newFixture(t, students{list: []directory.Student{ada}})

	rec := f.do(t, http.MethodGet, "/api/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string][]directory.Student](t, rec)["students"]
	require.Len(t, got, 1)
	assert.Equal(t, "A1B2C3", got[0].RFIDCard)

	f.do(t, http.MethodPost, "/api/scan", nil)
	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `badgedesk_scans_total{result="not_connected"} 1`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{registry.ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("%w to COM3", registry.ErrAlreadyConnected), http.StatusConflict},
		{fmt.Errorf("%w: open COM3: busy", reader.ErrConnection), http.StatusBadGateway},
		{fmt.Errorf("%w: sysfs", reader.ErrEnumeration), http.StatusInternalServerError},
		{directory.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.code, api.StatusFor(tc.err), tc.err.Error())
	}
}
