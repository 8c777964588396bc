package dispatch

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rn1robotics/hostcore/pkg/geom"
	"github.com/rn1robotics/hostcore/pkg/navigation"
	"github.com/rn1robotics/hostcore/pkg/pose"
	"github.com/rn1robotics/hostcore/pkg/routing"
)

// ErrFrameTooLarge guards against a corrupt or hostile length prefix.
var ErrFrameTooLarge = errors.New("dispatch: frame exceeds maximum size")

const maxFrameBytes = 1 << 20

// Server accepts client TCP connections and feeds decoded commands to a
// Dispatcher, emitting RC_* responses (§6). Exactly one connection is
// treated as "the" client at a time, matching the Routing Coordinator's
// ClientConnected() cadence hook (§4.3 item 6); later connections replace
// the prior one.
type Server struct {
	ln net.Listener
	d  *Dispatcher

	connected *routing.Coordinator // for SetClientConnected; nil-safe

	mu   sync.Mutex
	conn net.Conn
}

// Listen opens the TCP listener. An I/O init failure here is fatal to
// startup per §7.
func Listen(addr string, d *Dispatcher, connected *routing.Coordinator) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dispatch: tcp listen %s: %w", addr, err)
	}
	return &Server{ln: ln, d: d, connected: connected}, nil
}

// Run accepts connections until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("dispatch: tcp accept: %w", err)
		}
		s.adopt(conn)
		go s.handle(ctx, conn)
	}
}

func (s *Server) adopt(conn net.Conn) {
	s.mu.Lock()
	prior := s.conn
	s.conn = conn
	s.mu.Unlock()
	if prior != nil {
		_ = prior.Close()
	}
	if s.connected != nil {
		s.connected.SetClientConnected(true)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			if s.connected != nil {
				s.connected.SetClientConnected(false)
			}
		}
		s.mu.Unlock()
	}()

	r := bufio.NewReader(conn)
	for {
		mid, payload, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("client frame read failed, closing connection")
			}
			return
		}
		cmd, err := decodeCommand(mid, payload)
		if err != nil {
			log.Warn().Err(err).Uint8("mid", mid).Msg("dropping unparseable client command")
			continue
		}
		cmd.CorrelationID = uuid.New().String()
		ack := s.d.Submit(ctx, cmd)
		resp := encodeAck(mid, ack)
		if err := writeFrame(conn, resp.mid, resp.payload); err != nil {
			log.Warn().Err(err).Msg("client response write failed, closing connection")
			return
		}
	}
}

func readFrame(r *bufio.Reader) (mid byte, payload []byte, err error) {
	mid, err = r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return 0, nil, ErrFrameTooLarge
	}
	payload = make([]byte, n)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return mid, payload, nil
}

func writeFrame(w io.Writer, mid byte, payload []byte) error {
	frame := make([]byte, 5+len(payload))
	frame[0] = mid
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)
	_, err := w.Write(frame)
	return err
}

// decodeCommand parses a client frame into a Command (§6). Payload layouts
// are this reimplementation's own wire format (spec.md leaves the exact
// byte layout out of scope, "we specify only what the core requests and
// receives"); field order follows the parameter order §6 lists for each
// message.
func decodeCommand(mid byte, p []byte) (Command, error) {
	switch mid {
	case crDest:
		if len(p) < 9 {
			return Command{}, fmt.Errorf("%w: CR_DEST short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindDest)
		c.DestX, c.DestY = getInt32(p, 0), getInt32(p, 4)
		c.Backmode = int32(p[8])
		return c, nil
	case crRoute:
		if len(p) < 9 {
			return Command{}, fmt.Errorf("%w: CR_ROUTE short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindRoute)
		c.DestX, c.DestY = getInt32(p, 0), getInt32(p, 4)
		c.NoTight = p[8] != 0
		return c, nil
	case crCharge:
		return NewCommand(KindCharge), nil
	case crAddConstraint:
		if len(p) < 8 {
			return Command{}, fmt.Errorf("%w: CR_ADDCONSTRAINT short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindAddConstraint)
		c.ConstraintX, c.ConstraintY = getInt32(p, 0), getInt32(p, 4)
		return c, nil
	case crRemConstraint:
		if len(p) < 8 {
			return Command{}, fmt.Errorf("%w: CR_REMCONSTRAINT short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindRemConstraint)
		c.ConstraintX, c.ConstraintY = getInt32(p, 0), getInt32(p, 4)
		return c, nil
	case crMode:
		if len(p) < 1 {
			return Command{}, fmt.Errorf("%w: CR_MODE short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindMode)
		c.Mode = int(p[0])
		return c, nil
	case crManu:
		if len(p) < 1 {
			return Command{}, fmt.Errorf("%w: CR_MANU short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindManu)
		c.ManuOp = int(p[0])
		return c, nil
	case crMaintenance:
		if len(p) < 4 {
			return Command{}, fmt.Errorf("%w: CR_MAINTENANCE short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindMaintenance)
		c.MaintenanceMagic = getUint32(p, 0)
		return c, nil
	case crSpeedlim:
		if len(p) < 4 {
			return Command{}, fmt.Errorf("%w: CR_SPEEDLIM short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindSpeedLim)
		c.SpeedLim = getInt32(p, 0)
		return c, nil
	case crStatevect:
		if len(p) < 8 {
			return Command{}, fmt.Errorf("%w: CR_STATEVECT short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindStateVect)
		c.StateVect = StateVectUpdate{
			Loca2D:            p[0] != 0,
			Loca3D:            p[1] != 0,
			Mapping2D:         p[2] != 0,
			Mapping3D:         p[3] != 0,
			MappingCollisions: p[4] != 0,
			KeepPosition:      p[5] != 0,
			BigSearchArea:     int32(p[6]),
		}
		return c, nil
	case crSetpos:
		if len(p) < 12 {
			return Command{}, fmt.Errorf("%w: CR_SETPOS short payload", ErrInvalidCommand)
		}
		c := NewCommand(KindSetPos)
		c.SetPosAng = geom.Angle(getInt32(p, 0))
		c.SetPosX, c.SetPosY = getInt32(p, 4), getInt32(p, 8)
		return c, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown mid 0x%02x", ErrInvalidCommand, mid)
	}
}

type frame struct {
	mid     byte
	payload []byte
}

// encodeAck turns a command's Ack into the RC_* response (§6) the client
// expects for that request mid.
func encodeAck(reqMid byte, ack Ack) frame {
	if ack.Err != nil {
		return frame{mid: rcNack, payload: []byte(ack.Err.Error())}
	}
	switch reqMid {
	case crRoute:
		status := routeStatusSuccess
		if ack.NoRouteFound {
			status = routeStatusNoRouteFound
		}
		return frame{mid: rcRouteStatus, payload: []byte{byte(status)}}
	case crMaintenance, crDest:
		if ack.ExitCode != nil {
			return frame{mid: rcAck, payload: []byte{byte(*ack.ExitCode)}}
		}
		return frame{mid: rcAck, payload: nil}
	default:
		return frame{mid: rcAck, payload: nil}
	}
}

// EncodePos builds an RC_POS frame from the current pose (§6).
func EncodePos(p pose.Pose) []byte {
	b := make([]byte, 12)
	putInt32(b, 0, int32(p.Ang))
	putInt32(b, 4, p.X)
	putInt32(b, 8, p.Y)
	return b
}

// EncodeChargerStatus builds an RC_LOCALIZATION_RESULT-adjacent status blob
// reporting the charger FSM's stage, used by the Communication worker's
// periodic status push.
func EncodeChargerStatus(stage int) []byte {
	return []byte{byte(stage)}
}

// ChargerPoseOf is a small convenience used by the Communication worker when
// assembling a configure-charger acknowledgement.
func ChargerPoseOf(p navigation.ChargerPose) []byte {
	b := make([]byte, 24)
	putInt32(b, 0, p.FirstX)
	putInt32(b, 4, p.FirstY)
	putInt32(b, 8, p.SecondX)
	putInt32(b, 12, p.SecondY)
	putInt32(b, 16, int32(p.Ang))
	putInt32(b, 20, p.FwdMM)
	return b
}
