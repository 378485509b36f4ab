package windowctx

import (
	"context"
	"os/exec"
	"strings"
)

func runOut(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func resolveX11(ctx context.Context) Context {
	id, err := runOut(ctx, "xdotool", "getactivewindow")
	if err != nil || id == "" {
		return Context{Display: DisplayX11}
	}

	wc := Context{WindowID: id, Display: DisplayX11}
	if title, err := runOut(ctx, "xdotool", "getwindowname", id); err == nil {
		wc.Title = title
	}
	if class, err := runOut(ctx, "xprop", "-id", id, "WM_CLASS"); err == nil {
		wc.Class = parseWMClass(class)
	}
	wc.IsTextEditor = isEditor(wc.Title, wc.Class)
	return wc
}

// parseWMClass extracts the instance name from xprop output of the form
// `WM_CLASS(STRING) = "instance", "Class"`.
func parseWMClass(line string) string {
	if i := strings.IndexByte(line, '"'); i >= 0 {
		rest := line[i+1:]
		if j := strings.IndexByte(rest, '"'); j >= 0 {
			return rest[:j]
		}
	}
	return ""
}
