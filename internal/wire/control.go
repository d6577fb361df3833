package wire

import "encoding/binary"

// Control message types the server recognizes on the client->device path
// for logging/validation; the payload after the type byte is otherwise
// opaque and forwarded as-is.
const (
	CtrlInjectKeycode      uint8 = 0
	CtrlInjectTouchEvent   uint8 = 2
	CtrlScrollEvent        uint8 = 3
	CtrlBackOrScreenOn     uint8 = 4
	CtrlExpandNotification uint8 = 5
	CtrlExpandSettings     uint8 = 6
	CtrlSetDisplayPower    uint8 = 10
)

// Touch actions for BuildTouchFrame, matching the device protocol's
// AMOTION_EVENT_ACTION values used by INJECT_TOUCH_EVENT.
const (
	TouchActionDown uint8 = 0
	TouchActionUp   uint8 = 1
	TouchActionMove uint8 = 2
)

// Key actions for BuildKeycodeFrame (AKEY_EVENT_ACTION_DOWN/UP).
const (
	KeyActionDown uint8 = 0
	KeyActionUp   uint8 = 1
)

// BuildKeycodeFrame encodes an INJECT_KEYCODE control message: type(1) +
// action(1) + keycode(4) + repeat(4) + metaState(4) = 14 bytes.
func BuildKeycodeFrame(action uint8, keycode, repeat, metaState uint32) []byte {
	frame := make([]byte, 14)
	frame[0] = CtrlInjectKeycode
	frame[1] = action
	binary.BigEndian.PutUint32(frame[2:6], keycode)
	binary.BigEndian.PutUint32(frame[6:10], repeat)
	binary.BigEndian.PutUint32(frame[10:14], metaState)
	return frame
}

// BuildTouchFrame encodes an INJECT_TOUCH_EVENT control message: type(1) +
// action(1) + pointerId(8) + x(4) + y(4) + screenW(2) + screenH(2) +
// pressure(2) + actionButton(4) + buttons(4) = 32 bytes, matching the
// device protocol's fixed layout.
func BuildTouchFrame(action uint8, pointerID uint64, x, y int32, screenW, screenH uint16, pressure float32, actionButton, buttons uint32) []byte {
	frame := make([]byte, 32)
	frame[0] = CtrlInjectTouchEvent
	frame[1] = action
	binary.BigEndian.PutUint64(frame[2:10], pointerID)
	binary.BigEndian.PutUint32(frame[10:14], uint32(x))
	binary.BigEndian.PutUint32(frame[14:18], uint32(y))
	binary.BigEndian.PutUint16(frame[18:20], screenW)
	binary.BigEndian.PutUint16(frame[20:22], screenH)
	binary.BigEndian.PutUint16(frame[22:24], uint16(pressure*0xFFFF))
	binary.BigEndian.PutUint32(frame[24:28], actionButton)
	binary.BigEndian.PutUint32(frame[28:32], buttons)
	return frame
}

// IsEssential reports whether a control frame must never be dropped by the
// ControlRouter's back-pressure policy: UP/DOWN touch actions and
// power-related messages survive overflow, MOVE events do not.
//
// action is the first payload byte of an inject-touch-event frame (0=down,
// 1=up, 2=move per the device protocol); it is ignored for other types.
func IsEssential(msgType uint8, action uint8) bool {
	switch msgType {
	case CtrlSetDisplayPower, CtrlBackOrScreenOn:
		return true
	case CtrlInjectTouchEvent:
		return action != touchActionMove
	default:
		return false
	}
}

const touchActionMove uint8 = 2

// ValidateControlFrame reports whether a raw client->device control frame
// is well-formed enough to forward. Only an empty frame (len 0, not even a
// type byte) is malformed; it is dropped with a warning, not treated as
// fatal.
func ValidateControlFrame(frame []byte) bool {
	return len(frame) >= 1
}
