package reader_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgedesk/reader"
)

func TestCandidatePortsFiltersByMedium(t *testing.T) {
	e := reader.EnumeratorFunc(func() ([]reader.PortInfo, error) {
		return []reader.PortInfo{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", USB: true},
			{Name: "/dev/ttyS4", PCI: true},
			{Name: "/dev/ttyACM0", USB: true},
			{Name: "/dev/pts/3"},
		}, nil
	})

	ports, err := reader.CandidatePorts(e)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyS4", "/dev/ttyACM0"}, ports)
}

func TestCandidatePortsEmptyIsNotAnError(t *testing.T) {
	e := reader.EnumeratorFunc(func() ([]reader.PortInfo, error) {
		return []reader.PortInfo{{Name: "/dev/ttyS0"}}, nil
	})

	ports, err := reader.CandidatePorts(e)
	require.NoError(t, err)
	assert.NotNil(t, ports)
	assert.Empty(t, ports)
}

func TestCandidatePortsEnumerationError(t *testing.T) {
	cause := errors.New("udev unavailable")
	e := reader.EnumeratorFunc(func() ([]reader.PortInfo, error) { return nil, cause })

	_, err := reader.CandidatePorts(e)
	assert.ErrorIs(t, err, reader.ErrEnumeration)
	assert.ErrorIs(t, err, cause)
}

func TestNewDriver(t *testing.T) {
	d, err := reader.NewDriver("")
	require.NoError(t, err)
	assert.IsType(t, reader.Tarm{}, d)

	d, err = reader.NewDriver("bugst")
	require.NoError(t, err)
	assert.IsType(t, reader.Bugst{}, d)

	_, err = reader.NewDriver("wiegand")
	assert.Error(t, err)
}
