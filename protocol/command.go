package protocol

import (
	"strconv"
	"strings"
)

// 常量定义
const (
	Terminator = '\n'

	TokenOK    = "OK"
	TokenFault = "FAULT"

	MaxBrightness = 255
)

// PanelState is the cover position reported and requested by the panel
type PanelState string

const (
	StateOpened       PanelState = "OPENED"
	StateClosed       PanelState = "CLOSED"
	StateIntermediate PanelState = "INTERMEDIATE"
)

// Command is one ASCII line sent to the panel, terminator included
type Command string

// Keyword returns the first word of the command, used for logging
func (c Command) Keyword() string {
	s := c.String()
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// String returns the command without its line terminator
func (c Command) String() string {
	return strings.TrimRight(string(c), "\r\n")
}

// Bytes returns the exact bytes written to the wire
func (c Command) Bytes() []byte {
	return []byte(c)
}

func line(parts ...string) Command {
	return Command(strings.Join(parts, " ") + string(Terminator))
}

// Bright 构建亮度命令
// 0-255 的亮度映射到 [0.0, 1.0]，固定 6 位小数
func Bright(value uint16) Command {
	return line("BRIGHT", FormatBrightness(value))
}

// FormatBrightness formats value/255 in fixed decimal notation
func FormatBrightness(value uint16) string {
	return strconv.FormatFloat(float64(value)/MaxBrightness, 'f', 6, 64)
}

func On() Command  { return line("ON") }
func Off() Command { return line("OFF") }

// SetState asks the panel to move its cover
func SetState(state PanelState) Command {
	return line("STATE", string(state))
}

func Status() Command { return line("STATUS") }

// Ping and Info use the ASCOM-compatible command set of the firmware
func Ping() Command { return line("COMMAND:PING") }
func Info() Command { return line("COMMAND:INFO") }
