package localinput

import "github.com/veandco/go-sdl2/sdl"

// androidKeycode maps an SDL keysym to the Android KeyEvent.KEYCODE_*
// value scrcpy's device-side server expects in INJECT_KEYCODE. Only the
// keys a desktop-shell operator is likely to press are covered; anything
// else is reported unmapped and dropped.
func androidKeycode(key sdl.Keycode) (uint32, bool) {
	switch {
	case key >= sdl.K_a && key <= sdl.K_z:
		return uint32(key-sdl.K_a) + 29, true // KEYCODE_A..KEYCODE_Z
	case key >= sdl.K_0 && key <= sdl.K_9:
		return uint32(key-sdl.K_0) + 7, true // KEYCODE_0..KEYCODE_9
	}
	switch key {
	case sdl.K_SPACE:
		return 62, true // KEYCODE_SPACE
	case sdl.K_RETURN, sdl.K_KP_ENTER:
		return 66, true // KEYCODE_ENTER
	case sdl.K_BACKSPACE:
		return 67, true // KEYCODE_DEL
	case sdl.K_TAB:
		return 61, true // KEYCODE_TAB
	case sdl.K_ESCAPE:
		return 111, true // KEYCODE_ESCAPE
	case sdl.K_UP:
		return 19, true // KEYCODE_DPAD_UP
	case sdl.K_DOWN:
		return 20, true // KEYCODE_DPAD_DOWN
	case sdl.K_LEFT:
		return 21, true // KEYCODE_DPAD_LEFT
	case sdl.K_RIGHT:
		return 22, true // KEYCODE_DPAD_RIGHT
	case sdl.K_HOME:
		return 3, true // KEYCODE_HOME
	case sdl.K_AC_BACK:
		return 4, true // KEYCODE_BACK
	case sdl.K_VOLUMEUP:
		return 24, true // KEYCODE_VOLUME_UP
	case sdl.K_VOLUMEDOWN:
		return 25, true // KEYCODE_VOLUME_DOWN
	case sdl.K_PERIOD:
		return 56, true // KEYCODE_PERIOD
	case sdl.K_COMMA:
		return 55, true // KEYCODE_COMMA
	case sdl.K_MINUS:
		return 69, true // KEYCODE_MINUS
	}
	return 0, false
}

// robotgoKeyName maps an SDL keysym to the key-name string robotgo.KeyTap
// expects, for ModeHostRelay. Only keys with a direct robotgo name are
// covered.
func robotgoKeyName(key sdl.Keycode) (string, bool) {
	switch {
	case key >= sdl.K_a && key <= sdl.K_z:
		return string(rune('a' + (key - sdl.K_a))), true
	case key >= sdl.K_0 && key <= sdl.K_9:
		return string(rune('0' + (key - sdl.K_0))), true
	}
	switch key {
	case sdl.K_SPACE:
		return "space", true
	case sdl.K_RETURN, sdl.K_KP_ENTER:
		return "enter", true
	case sdl.K_BACKSPACE:
		return "backspace", true
	case sdl.K_TAB:
		return "tab", true
	case sdl.K_ESCAPE:
		return "esc", true
	case sdl.K_UP:
		return "up", true
	case sdl.K_DOWN:
		return "down", true
	case sdl.K_LEFT:
		return "left", true
	case sdl.K_RIGHT:
		return "right", true
	}
	return "", false
}
