package container

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// fakeComposeOnPath writes a fake `docker-compose` shell script that echoes
// its arguments (and optionally fails), then prepends its directory to
// PATH for the duration of the test.
func fakeComposeOnPath(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compose script requires a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "docker-compose")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	oldPath := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath)
	t.Cleanup(func() { os.Setenv("PATH", oldPath) })
}

func TestBuildSuccess(t *testing.T) {
	fakeComposeOnPath(t, "#!/bin/sh\necho building\nexit 0\n")
	c := New(time.Second, time.Second)
	if err := c.Build(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestBuildFailure(t *testing.T) {
	fakeComposeOnPath(t, "#!/bin/sh\necho boom 1>&2\nexit 1\n")
	c := New(time.Second, time.Second)
	err := c.Build(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUpPassesServiceArgs(t *testing.T) {
	// The fake fails unless it is invoked with exactly these arguments.
	fakeComposeOnPath(t, "#!/bin/sh\n[ \"$*\" = \"up -d app db\" ] || exit 1\nexit 0\n")
	c := New(time.Second, time.Second)
	if err := c.Up(context.Background(), t.TempDir(), "app", "db"); err != nil {
		t.Fatalf("Up: %v", err)
	}
}

func TestStatusParsesJSONArray(t *testing.T) {
	fakeComposeOnPath(t, `#!/bin/sh
echo '[{"Service":"app","State":"running"},{"Service":"db","State":"exited"}]'
exit 0
`)
	c := New(time.Second, time.Second)
	states, err := c.Status(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(states) != 2 || states[0].Name != "app" || states[0].State != "running" {
		t.Errorf("states = %+v", states)
	}
}

func TestStatusParsesNDJSON(t *testing.T) {
	fakeComposeOnPath(t, `#!/bin/sh
printf '{"Service":"app","State":"running"}\n{"Service":"db","State":"exited"}\n'
exit 0
`)
	c := New(time.Second, time.Second)
	states, err := c.Status(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(states) != 2 {
		t.Errorf("states = %+v", states)
	}
}

func TestLogsDefaultLineCount(t *testing.T) {
	fakeComposeOnPath(t, "#!/bin/sh\necho \"$@\"\nexit 0\n")
	c := New(time.Second, time.Second)
	out, err := c.Logs(context.Background(), t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if !contains(out, "100") {
		t.Errorf("expected default tail of 100, got %q", out)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

func TestLastLinesTruncates(t *testing.T) {
	in := "a\nb\nc\nd\ne\n"
	out := lastLines(in, 2)
	if out != "d\ne" {
		t.Errorf("lastLines = %q", out)
	}
}

func TestLastLinesShortInput(t *testing.T) {
	in := "a\nb\n"
	out := lastLines(in, 10)
	if out != "a\nb" {
		t.Errorf("lastLines = %q", out)
	}
}
