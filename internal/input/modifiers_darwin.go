//go:build darwin

package input

import "golang.design/x/hotkey"

var modifiers = map[string]hotkey.Modifier{
	"ctrl": hotkey.ModCtrl, "control": hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.ModOption, "option": hotkey.ModOption,
	"cmd": hotkey.ModCmd, "command": hotkey.ModCmd, "super": hotkey.ModCmd, "win": hotkey.ModCmd,
}
