package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const appName = "coswat-orch"

// DesktopNotifier pops up a local notification via osascript or notify-send
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send shows n; unsupported platforms are ignored
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e", appleScript(n))
	case "linux":
		cmd = exec.Command("notify-send", notifySendArgs(n)...)
	default:
		return nil
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func appleScript(n Notification) string {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptQuote(n.Message), appleScriptQuote(n.Title))
	if n.Region != "" {
		script += fmt.Sprintf(` subtitle "%s"`, appleScriptQuote(n.Region))
	}
	return script
}

func notifySendArgs(n Notification) []string {
	args := []string{"--app-name", appName, "--icon", IconForType(n.Type)}
	if n.Type == NotifyError {
		args = append(args, "--urgency", "critical")
	}
	return append(args, n.Title, n.Message)
}

func appleScriptQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// IconForType returns a freedesktop icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
