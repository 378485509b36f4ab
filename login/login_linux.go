//go:build linux

package login

import (
	"fmt"
	"os"
	"path/filepath"
)

func desktopPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "autostart", "voxd.desktop")
}

func Enabled() bool {
	_, err := os.Stat(desktopPath())
	return err == nil
}

// Enable writes an XDG autostart entry pointing at the running binary.
// envKeys is ignored: on Linux the session environment carries the API keys.
func Enable(envKeys []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	entry := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=voxd
Comment=Voice dictation
Exec=%s
Terminal=false
X-GNOME-Autostart-enabled=true
`, exe)

	path := desktopPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create autostart dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(entry), 0644); err != nil {
		return fmt.Errorf("write desktop entry: %w", err)
	}
	return nil
}

func Disable() error {
	if err := os.Remove(desktopPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove desktop entry: %w", err)
	}
	return nil
}
