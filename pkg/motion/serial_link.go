package motion

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/logging"
	serial "github.com/tarm/serial"
)

var log = logging.Component("motion")

// SerialLink is the default MotionLink transport: the MCU motion-control
// board attached over UART, opened via github.com/tarm/serial the same way
// the teacher's x/devices serial wrappers open a port, but framed with the
// protocol in protocol.go.
type SerialLink struct {
	port io.ReadWriter
	closer io.Closer

	writeMu sync.Mutex

	feedback chan Feedback
	cancel   context.CancelFunc
}

// OpenSerialLink opens the MCU serial port at the given device path and
// baud rate and starts the background feedback reader.
func OpenSerialLink(device string, baud int) (*SerialLink, error) {
	cfg := &serial.Config{Name: device, Baud: baud, ReadTimeout: 200 * time.Millisecond}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("motion: open serial port %s: %w", device, err)
	}
	return newSerialLink(port, port), nil
}

func newSerialLink(rw io.ReadWriter, closer io.Closer) *SerialLink {
	ctx, cancel := context.WithCancel(context.Background())
	l := &SerialLink{
		port:     rw,
		closer:   closer,
		feedback: make(chan Feedback, 16),
		cancel:   cancel,
	}
	go l.readLoop(ctx)
	return l
}

// Close stops the reader goroutine and closes the underlying port.
func (l *SerialLink) Close() error {
	l.cancel()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *SerialLink) write(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_, err := l.port.Write(frame)
	return err
}

func (l *SerialLink) MoveTo(ctx context.Context, x, y int32, backmode Backmode, id uint8, speedlim int32, flags MoveFlags) error {
	payload := make([]byte, 14)
	putInt32(payload, 0, x)
	putInt32(payload, 4, y)
	payload[8] = byte(backmode)
	payload[9] = id
	putInt32(payload, 10, speedlim)
	return l.write(buildFrame(verbMoveTo, payload))
}

func (l *SerialLink) TurnAndGoAbsRel(ctx context.Context, ang geom.Angle, distMM int32, speed int32, accurate bool) error {
	payload := make([]byte, 13)
	putInt32(payload, 0, int32(ang))
	putInt32(payload, 4, distMM)
	putInt32(payload, 8, speed)
	if accurate {
		payload[12] = 1
	}
	return l.write(buildFrame(verbTurnAndGoAbsRel, payload))
}

func (l *SerialLink) TurnAndGoRelRel(ctx context.Context, dAng geom.Angle, distMM int32, speed int32) error {
	payload := make([]byte, 12)
	putInt32(payload, 0, int32(dAng))
	putInt32(payload, 4, distMM)
	putInt32(payload, 8, speed)
	return l.write(buildFrame(verbTurnAndGoRelRel, payload))
}

func (l *SerialLink) StopMovement(ctx context.Context) error {
	return l.write(buildFrame(verbStopMovement, nil))
}

func (l *SerialLink) LimitSpeed(ctx context.Context, speed int32) error {
	payload := make([]byte, 4)
	putInt32(payload, 0, speed)
	return l.write(buildFrame(verbLimitSpeed, payload))
}

func (l *SerialLink) ReleaseMotors(ctx context.Context) error {
	return l.write(buildFrame(verbReleaseMotors, nil))
}

func (l *SerialLink) DaijuMode(ctx context.Context, on bool) error {
	v := byte(0)
	if on {
		v = 1
	}
	return l.write(buildFrame(verbDaijuMode, []byte{v}))
}

func (l *SerialLink) FindCharger(ctx context.Context) error {
	return l.write(buildFrame(verbFindCharger, nil))
}

func (l *SerialLink) SetHWObstacleAvoidanceMargin(ctx context.Context, marginMM int32) error {
	payload := make([]byte, 4)
	putInt32(payload, 0, marginMM)
	return l.write(buildFrame(verbSetHWObstacleMargin, payload))
}

func (l *SerialLink) SendKeepalive(ctx context.Context) error {
	return l.write(buildFrame(verbKeepalive, nil))
}

func (l *SerialLink) SetRobotPos(ctx context.Context, ang geom.Angle, x, y int32) error {
	payload := make([]byte, 12)
	putInt32(payload, 0, int32(ang))
	putInt32(payload, 4, x)
	putInt32(payload, 8, y)
	return l.write(buildFrame(verbSetRobotPos, payload))
}

func (l *SerialLink) CorrectRobotPos(ctx context.Context, dAng geom.Angle, dx, dy int32, posCorrID int32) error {
	payload := make([]byte, 16)
	putInt32(payload, 0, int32(dAng))
	putInt32(payload, 4, dx)
	putInt32(payload, 8, dy)
	putInt32(payload, 12, posCorrID)
	return l.write(buildFrame(verbCorrectRobotPos, payload))
}

func (l *SerialLink) Feedback() <-chan Feedback { return l.feedback }

// readLoop parses framed feedback packets off the wire and publishes them.
// Framing errors are logged and the reader resyncs on the next magic byte,
// matching the "transient MCU stalls recovered locally" policy (§7).
func (l *SerialLink) readLoop(ctx context.Context) {
	defer close(l.feedback)
	buf := make([]byte, 1)
	header := make([]byte, frameHeaderBytes)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := io.ReadFull(l.port, buf); err != nil {
			if err == io.EOF {
				return
			}
			continue
		}
		if buf[0] != frameMagic {
			continue
		}
		header[0] = buf[0]
		if _, err := io.ReadFull(l.port, header[1:]); err != nil {
			log.Warn().Err(err).Msg("feedback header read failed")
			continue
		}
		verb := header[1]
		length := int(header[2])
		payload := make([]byte, length+frameChecksumLen)
		if _, err := io.ReadFull(l.port, payload); err != nil {
			log.Warn().Err(err).Msg("feedback payload read failed")
			continue
		}
		got := payload[length]
		want := checksum(append(append([]byte{}, header...), payload[:length]...))
		if got != want {
			log.Warn().Msg("feedback checksum mismatch, dropping frame")
			continue
		}
		if verb != verbFeedback {
			continue
		}
		fb, ok := decodeFeedback(payload[:length])
		if !ok {
			continue
		}
		select {
		case l.feedback <- fb:
		case <-ctx.Done():
			return
		}
	}
}

func decodeFeedback(p []byte) (Feedback, bool) {
	if len(p) < 29 {
		return Feedback{}, false
	}
	fb := Feedback{
		Ang:       geom.Angle(getInt32(p, 0)),
		X:         getInt32(p, 4),
		Y:         getInt32(p, 8),
		Timestamp: time.Now(),
	}
	fb.CurMove.ID = p[12]
	fb.CurMove.RemainingMM = getInt32(p, 13)
	fb.CurMove.MicronaviStopFlags = uint32(getInt32(p, 17))
	fb.CurMove.FeedbackStopFlags = uint32(getInt32(p, 21))
	fb.CurMove.MicronaviActionFlags = uint32(getInt32(p, 25))
	if len(p) >= 31 {
		fb.Power.BatteryPercent = int(p[29])
		fb.Power.Charging = p[30]&1 != 0
		fb.Power.Charged = p[30]&2 != 0
	}
	return fb, true
}
