package motion

import (
	"encoding/binary"
)

// Wire framing for SerialLink. Exact byte framing is explicitly out of
// scope (spec.md §1); this is one concrete, workable choice, structured the
// way the teacher's x/devices/cr30 packet framing is: a fixed magic byte,
// a verb byte, a one-byte payload length, payload, and a trailing XOR
// checksum.
const (
	frameMagic       byte = 0xB0
	frameHeaderBytes      = 3 // magic, verb, length
	frameChecksumLen      = 1
	maxPayload            = 32
)

// Verb bytes for requests the core issues.
const (
	verbMoveTo byte = iota + 1
	verbTurnAndGoAbsRel
	verbTurnAndGoRelRel
	verbStopMovement
	verbLimitSpeed
	verbReleaseMotors
	verbDaijuMode
	verbFindCharger
	verbSetHWObstacleMargin
	verbKeepalive
	verbSetRobotPos
	verbCorrectRobotPos
)

// verbFeedback tags an incoming MCU response frame.
const verbFeedback byte = 0x80

func buildFrame(verb byte, payload []byte) []byte {
	if len(payload) > maxPayload {
		payload = payload[:maxPayload]
	}
	frame := make([]byte, 0, frameHeaderBytes+len(payload)+frameChecksumLen)
	frame = append(frame, frameMagic, verb, byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, checksum(frame))
	return frame
}

func checksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}

func putInt32(buf []byte, off int, v int32) {
	binary.BigEndian.PutUint32(buf[off:], uint32(v))
}

func getInt32(buf []byte, off int) int32 {
	return int32(binary.BigEndian.Uint32(buf[off:]))
}
