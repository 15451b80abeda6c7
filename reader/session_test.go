package reader_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgedesk/reader"
	"badgedesk/reader/readertest"
)

func TestOpenAppliesReadSlice(t *testing.T) {
	d := &readertest.Driver{}
	s, err := reader.Open(d, "/dev/ttyUSB0", 9600)
	require.NoError(t, err)
	defer s.Close()

	p := d.Last()
	require.NotNil(t, p)
	assert.Equal(t, reader.ReadSlice, p.ReadTimeout())
	assert.Equal(t, 9600, p.Baud)
	assert.Equal(t, "/dev/ttyUSB0", s.Name())
	assert.Equal(t, 9600, s.Baud())
}

func TestOpenFailures(t *testing.T) {
	tests := []struct {
		name string
		port string
		baud int
		err  error
	}{
		{"empty port", "", 9600, nil},
		{"zero baud", "/dev/ttyUSB0", 0, nil},
		{"negative baud", "/dev/ttyUSB0", -1, nil},
		{"driver refuses", "/dev/ttyUSB0", 9600, errors.New("port busy")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := &readertest.Driver{OpenErr: tc.err}
			_, err := reader.Open(d, tc.port, tc.baud)
			require.Error(t, err)
			assert.ErrorIs(t, err, reader.ErrConnection)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := &readertest.Driver{}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)

	s.Close()
	s.Close()
	assert.True(t, d.Last().Closed())

	err = s.WriteCommand([]byte("SCAN\r\n"))
	assert.ErrorIs(t, err, reader.ErrIO)
	_, err = s.ReadResponse(8)
	assert.ErrorIs(t, err, reader.ErrIO)
}

func TestReadResponseStopsAtLineEnd(t *testing.T) {
	d := &readertest.Driver{Respond: readertest.Reply("A1B2C3\r\n")}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteCommand([]byte("SCAN\r\n")))
	resp, err := s.ReadResponse(32, '\n')
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3\r\n", string(resp))
	assert.Equal(t, 1, d.Last().Reads())
}

func TestReadResponsePartialOnTimeout(t *testing.T) {
	d := &readertest.Driver{Respond: readertest.Reply("A1B2")}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteCommand([]byte("SCAN\r\n")))
	resp, err := s.ReadResponse(32)
	require.NoError(t, err)
	assert.Equal(t, "A1B2", string(resp))
}

func TestReadResponseHonoursLimit(t *testing.T) {
	d := &readertest.Driver{Respond: readertest.Reply("0123456789ABCDEF\n")}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteCommand([]byte("SCAN\r\n")))
	resp, err := s.ReadResponse(4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(resp))
}

func TestIOErrorsAreClassified(t *testing.T) {
	d := &readertest.Driver{Respond: readertest.Reply("X\n")}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	d.Last().FailReads(readertest.ErrUnplugged)
	require.NoError(t, s.WriteCommand([]byte("SCAN\r\n")))
	_, err = s.ReadResponse(8)
	assert.ErrorIs(t, err, reader.ErrIO)
	assert.ErrorIs(t, err, readertest.ErrUnplugged)

	d.Last().FailWrites(readertest.ErrUnplugged)
	err = s.WriteCommand([]byte("SCAN\r\n"))
	assert.ErrorIs(t, err, reader.ErrIO)
}

func TestReadResponseRejectsBadLimit(t *testing.T) {
	d := &readertest.Driver{Respond: readertest.Reply("A1\n")}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	for _, limit := range []int{0, -1} {
		_, err := s.ReadResponse(limit)
		require.Error(t, err)
		assert.NotErrorIs(t, err, reader.ErrIO)
	}
}

func TestReadResponseSpendsAtMostTheTimeout(t *testing.T) {
	d := &readertest.Driver{
		Respond: readertest.Reply("0123456789012345678901234567890123456789"),
		Drip:    60 * time.Millisecond,
	}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteCommand([]byte("SCAN\r\n")))
	start := time.Now()
	resp, err := s.ReadResponse(64)
	took := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, took, reader.IOTimeout+reader.ReadSlice/2)
	assert.GreaterOrEqual(t, took, reader.IOTimeout-reader.ReadSlice)
	assert.NotEmpty(t, resp)
	assert.Less(t, len(resp), 40, "a slow reader is cut off at the timeout")
	assert.Equal(t, reader.ReadSlice, d.Last().ReadTimeout(), "read timeout restored")
}

func TestReadResponseWaitsForSlowStart(t *testing.T) {
	d := &readertest.Driver{}
	s, err := reader.Open(d, "COM3", 115200)
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	resp, err := s.ReadResponse(8)
	require.NoError(t, err)
	assert.Empty(t, resp)
	assert.GreaterOrEqual(t, time.Since(start), reader.IOTimeout-reader.ReadSlice)
	assert.Greater(t, d.Last().Reads(), 1, "silence is polled in slices")
}
