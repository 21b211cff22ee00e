package dblog_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/jude/internal/dblog"
)

type testErr struct{ msg string }

func (e testErr) Error() string { return e.msg }

func TestHelpersEmitExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	dblog.Init(dblog.Config{Level: dblog.DebugLevel, JSONOutput: true, Output: &buf})

	dblog.QueueDrop("notify", 3)
	dblog.ValidatorRejected("database", "/root", testErr{"bad value"})
	dblog.LockContention("collection", "/issues/5", 10*time.Millisecond)

	out := buf.String()
	for _, want := range []string{
		`"component":"notify"`, `"total_dropped":3`,
		`"component":"database"`, `"path":"/root"`,
		`"component":"collection"`, `"waited"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got %s", want, out)
		}
	}
}

func TestInitDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	dblog.Init(dblog.Config{JSONOutput: true, Output: &buf})
	dblog.WithComponent("x").Debug().Msg("should be suppressed at info level")
	if buf.Len() != 0 {
		t.Fatalf("expected debug log suppressed at default info level, got %s", buf.String())
	}
}
