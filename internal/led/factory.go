package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device tree model substring to the sysfs LED that
// shows stream state on that board.
var boardLEDs = []struct {
	model string
	led   string
}{
	{model: "NanoPC-T6", led: "usr_led"},
	{model: "Orange Pi", led: "green_led"},
	{model: "Raspberry Pi", led: "ACT"},
}

// New returns a sysfs controller for name, or for the board's status LED
// when name is empty. Boards without a known LED get a controller that does
// nothing.
func New(name string, logger *slog.Logger) Controller {
	if name == "" {
		model := detectBoard(deviceTreeModelPath)
		for _, b := range boardLEDs {
			if strings.Contains(model, b.model) {
				name = b.led
				break
			}
		}
		if name == "" {
			logger.Info("No status LED on this board", "board_model", model)
			return noop{}
		}
		logger.Info("Using board status LED", "board_model", model, "led", name)
	}
	return newSysfs(sysfsLEDPath, name)
}

// detectBoard reads the device tree model, which is NUL terminated.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
