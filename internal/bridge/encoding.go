package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Format selects how mirrored readings are encoded.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat accepts "json" or "cbor".
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCBOR:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("bridge: unknown format %q", s)
	}
}

// ReadingMessage is the payload published for every reading. CBOR uses
// integer keys for compactness.
type ReadingMessage struct {
	Topic      string    `json:"topic" cbor:"1,keyasint"`
	Value      float64   `json:"value" cbor:"2,keyasint"`
	ReceivedAt time.Time `json:"received_at" cbor:"3,keyasint"`
	Session    string    `json:"session,omitempty" cbor:"4,keyasint,omitempty"`
	Order      int64     `json:"order,omitempty" cbor:"5,keyasint,omitempty"`
}

var (
	readingEncMode cbor.EncMode
	readingDecMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	readingEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create reading CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	readingDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create reading CBOR decoder mode: %v", err))
	}
}

// Encode renders m in format f.
func (f Format) Encode(m ReadingMessage) ([]byte, error) {
	if f == FormatCBOR {
		return readingEncMode.Marshal(m)
	}
	return json.Marshal(m)
}

// decode parses a payload produced by Encode.
func (f Format) decode(data []byte) (ReadingMessage, error) {
	var m ReadingMessage
	var err error
	if f == FormatCBOR {
		err = readingDecMode.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	return m, err
}
