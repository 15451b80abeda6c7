package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"badgedesk/cmdpipe"
)

// controlWindow bounds the clock skew accepted on a signed command.
const controlWindow = 5 * time.Minute

// ControlRequest is a reader command received over MQTT.
type ControlRequest struct {
	Command   string `json:"command"` // a command pipe line, e.g. "connect /dev/ttyUSB0 9600"
	Timestamp uint64 `json:"timestamp"`
	Signature string `json:"signature"` // HMAC-SHA256, hex or base64
}

// parseControl verifies payload and returns the command it carries.
func parseControl(base64Secret, clientID string, payload []byte, now time.Time) (cmdpipe.Command, error) {
	if base64Secret == "" {
		return cmdpipe.Command{}, fmt.Errorf("remote commands disabled (no control_secret configured)")
	}

	var req ControlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return cmdpipe.Command{}, fmt.Errorf("decode control request: %w", err)
	}

	if err := verifySignature(base64Secret, clientID, req.Command, req.Timestamp, req.Signature); err != nil {
		return cmdpipe.Command{}, err
	}

	ts := time.Unix(int64(req.Timestamp), 0)
	if now.Before(ts.Add(-controlWindow)) || now.After(ts.Add(controlWindow)) {
		return cmdpipe.Command{}, fmt.Errorf("control request timestamp out of range")
	}

	return cmdpipe.ParseLine(req.Command)
}

// signCommand signs clientID || command || big-endian ts.
func signCommand(base64Secret, clientID, command string, ts uint64) (string, string, error) {
	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return "", "", fmt.Errorf("invalid base64 secret: %w", err)
	}
	if len(secret) == 0 {
		return "", "", fmt.Errorf("secret cannot be empty")
	}

	msg := make([]byte, 0, len(clientID)+len(command)+8)
	msg = append(msg, clientID...)
	msg = append(msg, command...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], ts)
	msg = append(msg, tsBuf[:]...)

	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	sum := mac.Sum(nil)

	return hex.EncodeToString(sum), base64.StdEncoding.EncodeToString(sum), nil
}

func verifySignature(base64Secret, clientID, command string, ts uint64, providedSig string) error {
	sigHex, _, err := signCommand(base64Secret, clientID, command, ts)
	if err != nil {
		return err
	}
	expected, _ := hex.DecodeString(sigHex)

	if decoded, err := hex.DecodeString(providedSig); err == nil {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(providedSig); err == nil {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return nil
		}
	}
	return fmt.Errorf("signature verification failed")
}
