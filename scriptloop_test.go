package scriptloop_test

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	scriptloopPath string

	// tmpDir is a function used to create a tempdir
	// -test.keepdir flag says test to use os.MkdirTemp
	// default is t.TempDir, which will be cleaned up
	tmpDir func(t *testing.T) string
)

func TestMain(m *testing.M) {
	var keepTestDir bool
	flag.BoolVar(&keepTestDir, "test.keepdir", false, "use os.TempDir instead of t.TempDir to keep test artifacts")

	flag.Parse()

	if testing.Short() {
		slog.Warn("integration tests with -short are ignored")
		os.Exit(0)
	}

	if !keepTestDir {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			return t.TempDir()
		}
	} else {
		tmpDir = func(t *testing.T) string {
			t.Helper()
			dir, err := os.MkdirTemp("", t.Name()+"*")
			require.NoError(t, err)
			_, err = fmt.Fprintf(t.Output(), "TEMPDIR %s: -test.keepdir used, so it won't be automatically deleted", dir)
			require.NoError(t, err)
			return dir
		}
	}

	if !isExecutable("scriptloop-ci") {
		slog.Warn("cannot locate scriptloop-ci binary: run go build -race -cover -covermode=atomic -o scriptloop-ci ./cmd/scriptloop/ first")
		os.Exit(0)
	}
	if _, err := exec.LookPath("sh"); err != nil {
		slog.Warn("sh is not available, integration tests are ignored")
		os.Exit(0)
	}

	var err error
	scriptloopPath, err = filepath.Abs("scriptloop-ci")
	if err != nil {
		slog.Error("can't get abspath for scriptloop-ci", "error", err)
		os.Exit(1)
	}
	coverDir, err := filepath.Abs("coverage")
	if err != nil {
		slog.Error("can't get value for GOCOVERDIR for scriptloop-ci", "error", err)
		os.Exit(1)
	}
	err = rmRfMkdirp(coverDir)
	if err != nil {
		slog.Error("can't reset GOCOVERDIR for scriptloop-ci", "error", err, "coverdir", coverDir)
		os.Exit(1)
	}

	err = os.Setenv("GOCOVERDIR", coverDir)
	if err != nil {
		slog.Error("can't set GOCOVERDIR env variable", "error", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

const configTemplate = `
version: 0
interpreter: sh
scripts:
    - name: swapper
      path: swapper.sh
    - name: checker
      path: checker.sh
telegram:
    enabled: true
    api_url: %s
    token: "123:abc"
    chat_id: "42"
service:
    mode: "once"
    verbose: true
`

func TestScriptloop(t *testing.T) {
	_ = chDir(t)
	api := &telegramAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	creat(t, "scriptloop.yaml", []byte(fmt.Sprintf(configTemplate, srv.URL)))
	creat(t, "swapper.sh", []byte("echo 'Swap 1 ETH'\necho 'nothing to see'\n"))
	creat(t, "checker.sh", []byte("echo 'warning' >&2\n"))

	stdout, stderr, err := run(t, "once", "--repeat", "2", "--config", "scriptloop.yaml")
	if err != nil {
		t.Logf("%s", stderr)
		require.NoError(t, err)
	}
	require.Contains(t, stdout, "✅ Running swapper...")
	require.Contains(t, stdout, "nothing to see")

	texts := api.Texts()
	require.Equal(t, 2, count(texts, "🚀 Starting swapper..."))
	require.Equal(t, 2, count(texts, "🔄 swapper Output:\nSwap 1 ETH"))
	require.Zero(t, count(texts, "🔄 swapper Output:\nnothing to see"))
	require.Equal(t, 2, count(texts, "❌ Error in checker:\nwarning"))
	require.Equal(t, 2, count(texts, "✅ Finished checker"))
	require.Equal(t, 1, count(texts, "🎉 All scripts executed 2 time(s)!"))
	require.Equal(t, "✅✅ All scripts have been executed successfully!", texts[len(texts)-1])
}

func TestScriptloop_Failure(t *testing.T) {
	_ = chDir(t)
	api := &telegramAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	creat(t, "scriptloop.yaml", []byte(fmt.Sprintf(configTemplate, srv.URL)))
	creat(t, "swapper.sh", []byte("exit 3\n"))
	creat(t, "checker.sh", []byte("echo unreachable\n"))

	_, stderr, err := run(t, "once", "--config", "scriptloop.yaml")
	require.Error(t, err)
	require.Contains(t, stderr, "script swapper failed (exit code: 3)")

	texts := api.Texts()
	require.Contains(t, texts, "❌ Error in swapper (Exit code: 3)")
	require.Zero(t, count(texts, "🚀 Starting checker..."))
	require.Zero(t, count(texts, "🎉 All scripts executed 1 time(s)!"))
}

func TestScriptloop_Scripts(t *testing.T) {
	_ = chDir(t)
	creat(t, "scriptloop.yaml", []byte(fmt.Sprintf(configTemplate, "https://api.telegram.org")))

	stdout, stderr, err := run(t, "scripts", "--config", "scriptloop.yaml")
	if err != nil {
		t.Logf("%s", stderr)
		require.NoError(t, err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "swapper")
	require.Contains(t, lines[0], "sh swapper.sh")
	require.Contains(t, lines[1], "checker")
}

func TestScriptloop_InvalidConfig(t *testing.T) {
	_ = chDir(t)
	creat(t, "scriptloop.yaml", []byte("version: 0\nscripts: []\nservice:\n    mode: forever\n"))

	_, stderr, err := run(t, "scripts", "--config", "scriptloop.yaml")
	require.Error(t, err)
	require.Contains(t, stderr, "parsing config")
}

// telegramAPI accepts sendMessage calls and remembers the texts
type telegramAPI struct {
	mx    sync.Mutex
	texts []string
}

func (a *telegramAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	raw, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(raw, &body); err != nil || !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"description":"Bad Request"}`)
		return
	}
	a.mx.Lock()
	a.texts = append(a.texts, body.Text)
	a.mx.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
}

func (a *telegramAPI) Texts() []string {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]string(nil), a.texts...)
}

func count(texts []string, text string) int {
	var n int
	for _, t := range texts {
		if t == text {
			n++
		}
	}
	return n
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	t.Cleanup(cancel)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, scriptloopPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+t.TempDir())
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func rmRfMkdirp(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

func chDir(t *testing.T) string {
	t.Helper()
	tempdir := tmpDir(t)
	t.Chdir(tempdir)
	return tempdir
}

func creat(t *testing.T, path string, content []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()
	_, err = f.Write(content)
	require.NoError(t, err)
	err = f.Sync()
	require.NoError(t, err)
}
