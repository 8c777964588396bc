package dispatch

// Message ids (mid) for the client TCP protocol (§6). Each frame on the
// wire is [mid byte][uint32 big-endian length][length bytes of payload],
// the same magic-then-length-then-payload shape as pkg/motion's serial
// framing (protocol.go), adapted to a length-prefixed TCP stream since TCP
// already guarantees byte-order delivery and needs no resync magic.
const (
	crDest          byte = 0x01
	crRoute         byte = 0x02
	crCharge        byte = 0x03
	crAddConstraint byte = 0x04
	crRemConstraint byte = 0x05
	crMode          byte = 0x06
	crManu          byte = 0x07
	crMaintenance   byte = 0x08
	crSpeedlim      byte = 0x09
	crStatevect     byte = 0x0A
	crSetpos        byte = 0x0B

	rcPos               byte = 0x81
	rcRouteStatus        byte = 0x82
	rcMovementStatus     byte = 0x83
	rcLocalizationResult byte = 0x84
	rcBattery            byte = 0x85
	rcStatevect          byte = 0x86
	rcAck                byte = 0x87
	rcNack               byte = 0x88
)

// routeStatus mirrors the RC_ROUTE_STATUS status byte (§6, §8 scenario 1).
type routeStatus byte

const (
	routeStatusSuccess      routeStatus = 0
	routeStatusNoRouteFound routeStatus = 1
)

func putUint32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func getUint32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

func putInt32(b []byte, off int, v int32) { putUint32(b, off, uint32(v)) }
func getInt32(b []byte, off int) int32    { return int32(getUint32(b, off)) }
