package emulator

import (
	"strings"
	"testing"
)

func TestPanelCommands(t *testing.T) {
	p := NewPanel()

	steps := []struct {
		line string
		want string
	}{
		{"STATE CLOSED", "OK"},
		{"on", "OK"},
		{"BRIGHT 0.501961", "OK"},
		{"BRIGHT", "0.50"},
		{"STATUS", "OK STATE: CLOSED BRIGHTNESS: 0.50 ENABLED: TRUE"},
		{"OFF", "OK"},
		{"STATE OPENED", "OK"},
		{"STATE", "OPENED"},
		{"STATE SIDEWAYS", "FAULT: Invalid state sideways"},
		{"BRIGHT 2", "FAULT: Brightness out of bounds"},
		{"COMMAND:PING", "RESULT:PING:OK:" + DefaultGUID},
		{"COMMAND:INFO", "RESULT:INFO:" + InfoText},
		{"COMMAND:FOO", "ERROR:INVALID_COMMAND"},
		{"HELLO", helpText},
	}
	for _, s := range steps {
		got, ok := p.Handle(s.line)
		if !ok {
			t.Fatalf("%q: no reply", s.line)
		}
		if got != s.want {
			t.Errorf("%q: got %q, want %q", s.line, got, s.want)
		}
	}
}

func TestPanelIgnoresShortLines(t *testing.T) {
	p := NewPanel()
	for _, line := range []string{"", "\n", "X\r\n"} {
		if reply, ok := p.Handle(line); ok {
			t.Errorf("%q: unexpected reply %q", line, reply)
		}
	}
}

func TestPanelEStopBlocksCover(t *testing.T) {
	p := NewPanel()
	if got, _ := p.Handle("ESTOP"); got != "ESTOP: ALLCLEAR REQUIRED TO RESUME MOTION" {
		t.Fatalf("ESTOP reply %q", got)
	}
	if got, _ := p.Handle("CLOSE"); got != "FAIL" {
		t.Errorf("CLOSE during estop = %q", got)
	}
	p.Handle("ALLCLEAR")
	if got, _ := p.Handle("CLOSE"); got != "OK" {
		t.Errorf("CLOSE after allclear = %q", got)
	}
	if s := p.Snapshot(); s.State != "closed" || s.EStop {
		t.Errorf("snapshot %+v", s)
	}
}

func TestPanelOnWithBrightness(t *testing.T) {
	p := NewPanel()
	p.Handle("ON 0.25")
	s := p.Snapshot()
	if !s.Enabled || s.Brightness != 0.25 {
		t.Errorf("snapshot %+v", s)
	}
}

func TestPanelAngle(t *testing.T) {
	p := NewPanel()

	steps := []struct {
		line  string
		want  string
		state string
	}{
		{"ANGLE", "270.0", "opened"},
		{"ANGLE 135", "OK", "intermediate"},
		{"ANGLE", "135.0", "intermediate"},
		{"STATE", "INTERMEDIATE", "intermediate"},
		{"ANGLE 4.5", "OK", "closed"},
		{"ANGLE", "4.5", "closed"},
		{"ANGLE 300", "FAULT: Angle out of bounds", "closed"},
		{"ANGLE -21", "FAULT: Angle out of bounds", "closed"},
		{"ANGLE up", `FAULT: could not convert "UP" to float`, "closed"},
		{"ANGLE 265", "OK", "opened"},
	}
	for _, s := range steps {
		got, ok := p.Handle(s.line)
		if !ok {
			t.Fatalf("%q: no reply", s.line)
		}
		if got != s.want {
			t.Errorf("%q: got %q, want %q", s.line, got, s.want)
		}
		if st := p.Snapshot().State; st != s.state {
			t.Errorf("%q: state %q, want %q", s.line, st, s.state)
		}
	}
}

func TestPanelAngleDuringEStop(t *testing.T) {
	p := NewPanel()
	p.Handle("ESTOP")
	if got, _ := p.Handle("ANGLE 90"); got != "FAIL" {
		t.Errorf("ANGLE during estop = %q", got)
	}
	if s := p.Snapshot(); s.Angle != OpenedAngle {
		t.Errorf("cover moved to %v", s.Angle)
	}
}

func TestPanelHelpListsAngle(t *testing.T) {
	got, _ := NewPanel().Handle("??")
	if !strings.Contains(got, "ANGLE [0-270]") {
		t.Errorf("help %q", got)
	}
}

func TestPanelCalibrator(t *testing.T) {
	p := NewPanel()

	silent := func(line string) {
		t.Helper()
		if reply, ok := p.Handle(line); ok {
			t.Fatalf("%q: unexpected reply %q", line, reply)
		}
	}

	silent("COMMAND:CALIBRATOR:ON:0.4")
	if s := p.Snapshot(); s.State != "closed" || s.Brightness != 0.4 || s.Enabled {
		t.Errorf("after CALIBRATOR:ON snapshot %+v", s)
	}
	if got, _ := p.Handle("COMMAND:CALIBRATOR:GETBRIGHTNESS"); got != "RESULT:CALIBRATOR:BRIGHTNESS:0.4" {
		t.Errorf("GETBRIGHTNESS = %q", got)
	}

	silent("COMMAND:CALIBRATOR:BRIGHTNESS:0.9")
	if s := p.Snapshot(); s.Brightness != 0.9 {
		t.Errorf("brightness %v", s.Brightness)
	}
	if got, _ := p.Handle("COMMAND:CALIBRATOR:BRIGHTNESS:7"); got != "FAULT: Brightness out of bounds" {
		t.Errorf("out of range BRIGHTNESS = %q", got)
	}

	silent("COMMAND:CALIBRATOR:ON")
	if s := p.Snapshot(); s.Brightness != DefaultBrightness {
		t.Errorf("CALIBRATOR:ON without value left brightness %v", s.Brightness)
	}

	p.Handle("ON")
	silent("COMMAND:CALIBRATOR:OFF")
	if s := p.Snapshot(); s.Enabled || s.State != "opened" {
		t.Errorf("after CALIBRATOR:OFF snapshot %+v", s)
	}
}

func TestPanelReplAndReset(t *testing.T) {
	p := NewPanel()
	p.Handle("ON 0.3")
	p.Handle("CLOSE")

	if got, _ := p.Handle("RESET"); got != "GOODBYE" {
		t.Fatalf("RESET = %q", got)
	}
	want := Snapshot{Brightness: DefaultBrightness, State: "opened", Angle: OpenedAngle}
	if s := p.Snapshot(); s != want {
		t.Errorf("after RESET %+v, want %+v", s, want)
	}

	if got, _ := p.Handle("REPL"); got != "GOODBYE" {
		t.Fatalf("REPL = %q", got)
	}
	if reply, ok := p.Handle("STATUS"); ok {
		t.Errorf("halted panel answered %q", reply)
	}
	if !p.Snapshot().Halted {
		t.Error("panel not halted after REPL")
	}
}
