//go:build linux

package input

import "golang.design/x/hotkey"

// Alt is Mod1 and Super is Mod4 under X11
var modifiers = map[string]hotkey.Modifier{
	"ctrl": hotkey.ModCtrl, "control": hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.Mod1,
	"super": hotkey.Mod4, "win": hotkey.Mod4, "cmd": hotkey.Mod4, "command": hotkey.Mod4,
}
