package main

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgedesk/cmdpipe"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

func signedPayload(t *testing.T, clientID, command string, ts time.Time, useBase64 bool) []byte {
	t.Helper()
	sigHex, sigB64, err := signCommand(testSecret, clientID, command, uint64(ts.Unix()))
	require.NoError(t, err)
	sig := sigHex
	if useBase64 {
		sig = sigB64
	}
	data, err := json.Marshal(ControlRequest{Command: command, Timestamp: uint64(ts.Unix()), Signature: sig})
	require.NoError(t, err)
	return data
}

func TestParseControl(t *testing.T) {
	now := time.Now()

	cmd, err := parseControl(testSecret, "desk1", signedPayload(t, "desk1", "connect COM3 9600", now, false), now)
	require.NoError(t, err)
	assert.Equal(t, cmdpipe.Command{Op: cmdpipe.OpConnect, Port: "COM3", Baud: 9600}, cmd)

	cmd, err = parseControl(testSecret, "desk1", signedPayload(t, "desk1", "scan", now, true), now)
	require.NoError(t, err)
	assert.Equal(t, cmdpipe.OpScan, cmd.Op)
}

func TestParseControlRejects(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		secret  string
		payload []byte
		wantErr string
	}{
		{"disabled", "", signedPayload(t, "desk1", "scan", now, false), "disabled"},
		{"garbage", testSecret, []byte("{"), "decode control request"},
		{"other node", testSecret, signedPayload(t, "desk2", "scan", now, false), "signature verification failed"},
		{"stale", testSecret, signedPayload(t, "desk1", "scan", now.Add(-10*time.Minute), false), "out of range"},
		{"unknown command", testSecret, signedPayload(t, "desk1", "reboot", now, false), "unknown command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseControl(tc.secret, "desk1", tc.payload, now)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestSignCommandRejectsBadSecret(t *testing.T) {
	_, _, err := signCommand("not base64!", "desk1", "scan", 1)
	assert.ErrorContains(t, err, "invalid base64 secret")

	_, _, err = signCommand("", "desk1", "scan", 1)
	assert.ErrorContains(t, err, "secret cannot be empty")
}
