package reader

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Protocol defaults. Vendors differ; override them in ProtocolConfig.
const (
	DefaultRequest     = "SCAN\r\n"
	DefaultNoCard      = "NO_CARD"
	DefaultMaxResponse = 32
)

// Protocol is the request/response exchange that asks a reader for the card
// currently on its antenna.
type Protocol struct {
	Request     []byte
	NoCard      string // compared case-sensitively after trimming
	MaxResponse int
	Framing     Framing
}

// ProtocolConfig is the YAML form of Protocol. RequestHex wins over Request
// when both are set.
type ProtocolConfig struct {
	Request     string `yaml:"request"`
	RequestHex  string `yaml:"request_hex"`
	NoCard      string `yaml:"no_card"`
	MaxResponse int    `yaml:"max_response"`
	Framing     string `yaml:"framing"` // line (default), stx_etx, binary9
}

// DefaultProtocol returns the line-oriented SCAN / NO_CARD protocol.
func DefaultProtocol() Protocol {
	return Protocol{
		Request:     []byte(DefaultRequest),
		NoCard:      DefaultNoCard,
		MaxResponse: DefaultMaxResponse,
		Framing:     FramingLine,
	}
}

// Protocol builds a Protocol, filling unset fields from DefaultProtocol.
func (c ProtocolConfig) Protocol() (Protocol, error) {
	p := DefaultProtocol()

	switch {
	case c.RequestHex != "":
		frame, err := hex.DecodeString(strings.ReplaceAll(c.RequestHex, " ", ""))
		if err != nil {
			return Protocol{}, fmt.Errorf("decode request_hex: %w", err)
		}
		p.Request = frame
	case c.Request != "":
		p.Request = []byte(c.Request)
	}

	if c.NoCard != "" {
		p.NoCard = c.NoCard
	}
	if c.MaxResponse < 0 {
		return Protocol{}, fmt.Errorf("max_response must be positive, got %d", c.MaxResponse)
	}
	if c.MaxResponse > 0 {
		p.MaxResponse = c.MaxResponse
	}

	framing, err := parseFraming(c.Framing)
	if err != nil {
		return Protocol{}, err
	}
	p.Framing = framing
	if framing == FramingBinary9 && c.MaxResponse == 0 {
		p.MaxResponse = 9
	}
	return p, nil
}

// PerformScan runs one exchange on s and returns the card identifier.
// An empty, malformed or sentinel response is ErrNoCard; transport
// failures are ErrIO.
func (p Protocol) PerformScan(s *Session) (string, error) {
	limit := p.MaxResponse
	if limit <= 0 {
		limit = DefaultMaxResponse
	}
	if err := s.Flush(); err != nil {
		return "", err
	}
	if err := s.WriteCommand(p.Request); err != nil {
		return "", err
	}
	resp, err := s.ReadResponse(limit, p.Framing.terminators()...)
	if err != nil {
		return "", err
	}

	card := p.Framing.decode(resp)
	if card == "" || card == p.NoCard {
		return "", ErrNoCard
	}
	return card, nil
}
