package forwarder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jd3nn1s/autoboat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPForwarder(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	udpAddr := pc.LocalAddr().(*net.UDPAddr)
	config := fmt.Sprintf(`
Server = "127.0.0.1"
Port = %d
`, udpAddr.Port)

	recvData := struct {
		data []byte
		len  int
	}{}

	dataChan := make(chan struct{}, 1)
	go func() {
		buffer := make([]byte, 1024)
		assert.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second*3)))
		n, _, err := pc.ReadFrom(buffer)
		assert.NoError(t, err)
		recvData.data = buffer
		recvData.len = n
		dataChan <- struct{}{}
	}()

	udp, err := NewUDPForwarderFromReader(bytes.NewBufferString(config))
	require.NoError(t, err)
	defer udp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = udp.Start(ctx)
	}()

	newTelem := autoboat.Telemetry{
		Mode:               autoboat.ModeAutonomousTesting,
		WaypointIndex:      2,
		VirtualTarget:      true,
		DistanceToWaypoint: 512.5,
		Latitude:           470000000,
		Longitude:          -1220000000,
		TargetLatitude:     470036000,
		TargetLongitude:    -1220000000,
		Bearing:            12.5,
		TrueHeading:        350,
		CourseCorrection:   -40,
		BaselinePulseWidth: 1200,
		CruisePulseWidth:   1300,
		LeftPulseWidth:     1260,
		RightPulseWidth:    1340,
		PropulsionOn:       true,
		BatteryMv:          12100,
		BudgetW:            150,
		Kp:                 2,
		Ki:                 0.05,
		Kd:                 0.5,
	}
	prevTelem := autoboat.Telemetry{}
	assert.NoError(t, udp.Forward(&newTelem, &prevTelem))

	<-dataChan
	assert.Equal(t, 69, recvData.len)
	assert.Equal(t, maxTelemetrySize, recvData.len)

	hdr := Header{}
	recvTelem := autoboat.Telemetry{}
	rdr := bytes.NewReader(recvData.data)
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &hdr))
	assert.Equal(t, uint8(TypeTelemetry), hdr.Type)
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &recvTelem))
	assert.Equal(t, &newTelem, &recvTelem)
}

func TestUDPForwarderBadConfig(t *testing.T) {
	_, err := NewUDPForwarderFromReader(bytes.NewBufferString(`Server = `))
	assert.Error(t, err)
}

func TestUDPForwarderMissingFile(t *testing.T) {
	_, err := NewUDPForwarder("/nonexistent/udpforwarder.toml")
	assert.Error(t, err)
}
