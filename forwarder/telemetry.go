package forwarder

import (
	"bytes"
	"encoding/binary"

	"github.com/jd3nn1s/autoboat"
	"github.com/pkg/errors"
)

type Header struct {
	Type uint8
}

const (
	TypeTelemetry = 1
)

var maxTelemetrySize = binary.Size(Header{}) + binary.Size(autoboat.Telemetry{})

// encodeTelemetry writes a header followed by the fixed size record, little
// endian.
func encodeTelemetry(telem *autoboat.Telemetry) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, maxTelemetrySize))
	hdr := Header{
		Type: TypeTelemetry,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "unable to write udp packet header")
	}
	if err := binary.Write(buf, binary.LittleEndian, telem); err != nil {
		return nil, errors.Wrap(err, "unable to write telemetry udp packet")
	}
	return buf.Bytes(), nil
}
