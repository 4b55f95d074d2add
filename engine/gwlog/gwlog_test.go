package gwlog

import (
	"bytes"
	"strings"
	"testing"
)

func TestGWLog(t *testing.T) {
	SetSource("gwlog_test")
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DebugLevel)

	for name, lv := range map[string]Level{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"panic":   PanicLevel,
		"FATAL":   FatalLevel,
	} {
		if StringToLevel(name) != lv {
			t.Errorf("StringToLevel(%q) = %v", name, StringToLevel(name))
		}
	}

	Debugf("this is a debug %d", 1)
	SetLevel(InfoLevel)
	Debugf("SHOULD NOT SEE THIS!")
	Infof("this is an info %d", 2)
	TraceError("this is a trace error %d", 3)
	func() {
		defer func() {
			_ = recover()
		}()
		Panicf("this is a panic %d", 4)
	}()

	out := buf.String()
	if !strings.Contains(out, "this is a debug 1") || !strings.Contains(out, "this is an info 2") {
		t.Errorf("missing log lines: %s", out)
	}
	if strings.Contains(out, "SHOULD NOT SEE THIS") {
		t.Errorf("debug line logged at info level")
	}
	if GetLevel() != InfoLevel {
		t.Errorf("level should be info")
	}
}
