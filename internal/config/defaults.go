package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/keybridge/
//   - Linux:   ~/.config/keybridge/
//   - Windows: %APPDATA%\keybridge\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "keybridge")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "keybridge")
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", "keybridge")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "keybridge")
		}
		return filepath.Join(homeDir(), ".config", "keybridge")
	}
}

// PlatformStateDir returns where logs go.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/keybridge/
//   - Linux:   ~/.local/state/keybridge/
//   - Windows: %LOCALAPPDATA%\keybridge\logs\
func PlatformStateDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "keybridge")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "keybridge", "logs")
		}
		return filepath.Join(homeDir(), "AppData", "Local", "keybridge", "logs")
	default:
		if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
			return filepath.Join(xdgState, "keybridge")
		}
		return filepath.Join(homeDir(), ".local", "state", "keybridge")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// SupportedConfigFormats returns the supported configuration file extensions.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile searches the config directory for a config.* file in any
// supported format. Returns the default TOML path if none exists.
func FindConfigFile() string {
	dir := KeybridgeDir()
	for _, ext := range SupportedConfigFormats() {
		path := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ConfigPath()
}

// X11 keycodes used by the defaults.
const (
	KeyEscape    uint16 = 9
	KeyBackSpace uint16 = 22
	KeySpace     uint16 = 65
	KeyAltR      uint16 = 108
	KeyHangul    uint16 = 130
)

// DefaultToggleKeys returns the default input mode hotkeys: the Hangul key,
// right Alt, and Shift+Space.
func DefaultToggleKeys() []Hotkey {
	return []Hotkey{
		{Code: KeyHangul},
		{Code: KeyAltR},
		{Code: KeySpace, Shift: true},
	}
}

// DefaultClearKeys returns Escape and BackSpace.
func DefaultClearKeys() []uint16 {
	return []uint16{KeyEscape, KeyBackSpace}
}

// DefaultKeymap returns a US QWERTY keymap in X11 keycodes.
func DefaultKeymap() []KeyBinding {
	rows := []struct {
		first uint16
		keys  []string // pairs of plain, shifted
	}{
		{10, []string{"1", "!", "2", "@", "3", "#", "4", "$", "5", "%", "6", "^", "7", "&", "8", "*", "9", "(", "0", ")", "-", "_", "=", "+"}},
		{24, []string{"q", "Q", "w", "W", "e", "E", "r", "R", "t", "T", "y", "Y", "u", "U", "i", "I", "o", "O", "p", "P", "[", "{", "]", "}"}},
		{38, []string{"a", "A", "s", "S", "d", "D", "f", "F", "g", "G", "h", "H", "j", "J", "k", "K", "l", "L", ";", ":", "'", "\"", "`", "~"}},
		{51, []string{"\\", "|", "z", "Z", "x", "X", "c", "C", "v", "V", "b", "B", "n", "N", "m", "M", ",", "<", ".", ">", "/", "?"}},
	}

	var keys []KeyBinding
	for _, row := range rows {
		for i := 0; i+1 < len(row.keys); i += 2 {
			keys = append(keys, KeyBinding{
				Code:      row.first + uint16(i/2),
				Char:      row.keys[i],
				ShiftChar: row.keys[i+1],
			})
		}
	}
	keys = append(keys, KeyBinding{Code: KeySpace, Char: " "})
	return keys
}

// DefaultComposeRules returns accent sequences in the style of dead keys:
// an accent character followed by a base letter.
func DefaultComposeRules() []ComposeRule {
	accents := []struct {
		accent string
		table  map[string]string
	}{
		{"'", map[string]string{"a": "á", "e": "é", "i": "í", "o": "ó", "u": "ú", "A": "Á", "E": "É", "I": "Í", "O": "Ó", "U": "Ú"}},
		{"`", map[string]string{"a": "à", "e": "è", "i": "ì", "o": "ò", "u": "ù", "A": "À", "E": "È", "I": "Ì", "O": "Ò", "U": "Ù"}},
		{"\"", map[string]string{"a": "ä", "e": "ë", "i": "ï", "o": "ö", "u": "ü", "A": "Ä", "E": "Ë", "I": "Ï", "O": "Ö", "U": "Ü"}},
		{"~", map[string]string{"a": "ã", "n": "ñ", "o": "õ", "A": "Ã", "N": "Ñ", "O": "Õ"}},
	}

	var rules []ComposeRule
	for _, a := range accents {
		for _, base := range []string{"a", "e", "i", "o", "u", "n", "A", "E", "I", "O", "U", "N"} {
			if out, ok := a.table[base]; ok {
				rules = append(rules, ComposeRule{Sequence: a.accent + base, Result: out})
			}
		}
	}
	return rules
}
