package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdg/hookgate/internal/audit"
	"github.com/xdg/hookgate/internal/config"
	"github.com/xdg/hookgate/internal/guard"
	"github.com/xdg/hookgate/internal/hlog"
	"github.com/xdg/hookgate/internal/loop"
)

func init() {
	hlog.Discard()
}

type fixture struct {
	d        *Dispatcher
	loops    *loop.Controller
	auditDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()

	commands, err := guard.NewCommandGuard(&cfg.Commands)
	require.NoError(t, err)
	paths := guard.NewPathGuard(&cfg.Paths, false)
	loops := loop.NewController(loop.NewStore(filepath.Join(t.TempDir(), "loops")), 3)

	auditDir := t.TempDir()
	rec := audit.NewRecorder(auditDir)
	t.Cleanup(func() { rec.Close() })

	return &fixture{
		d:        New(commands, paths, loops, rec, ""),
		loops:    loops,
		auditDir: auditDir,
	}
}

// auditLines returns the audit trail for one concern, one line per entry.
func (f *fixture) auditLines(t *testing.T, concern audit.Concern) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.auditDir, string(concern)+".log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// totalAuditLines counts entries across every concern file.
func (f *fixture) totalAuditLines(t *testing.T) int {
	t.Helper()
	total := 0
	entries, err := os.ReadDir(f.auditDir)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(f.auditDir, e.Name()))
		require.NoError(t, err)
		total += strings.Count(string(data), "\n")
	}
	return total
}

func preToolUse(tool, input string) []byte {
	return []byte(fmt.Sprintf(
		`{"hook_event_name":"PreToolUse","tool_name":%q,"tool_input":%s,"session_id":"sess-1"}`,
		tool, input))
}

func TestDispatchBlocksDangerousCommand(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch(preToolUse("Bash", `{"command":"rm -rf /var/data"}`))
	require.True(t, out.Block)
	assert.Contains(t, out.Reason, "recursive force delete")

	lines := f.auditLines(t, audit.ConcernCommands)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "decision=block")
	assert.Contains(t, lines[0], `category="destructive"`)
	assert.Contains(t, lines[0], `session="sess-1"`)
}

func TestDispatchAllowsSafeCommand(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch(preToolUse("Bash", `{"command":"go test ./..."}`))
	assert.False(t, out.Block)

	lines := f.auditLines(t, audit.ConcernCommands)
	require.Len(t, lines, 1, "allowed operations are audited too")
	assert.Contains(t, lines[0], "decision=allow")
}

func TestDispatchBlocksProtectedPath(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch(preToolUse("Write", `{"file_path":".env","content":"KEY=value"}`))
	require.True(t, out.Block)
	assert.Contains(t, out.Reason, ".env")

	lines := f.auditLines(t, audit.ConcernFiles)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "decision=block")
}

func TestDispatchBlocksSentinelEdit(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch(preToolUse("Edit",
		`{"file_path":"src/main.go","old_string":"a","new_string":"b // DO_NOT_MODIFY"}`))
	require.True(t, out.Block)
	assert.Contains(t, out.Reason, "DO_NOT_MODIFY")
}

// anchoredPathDispatcher guards a single anchored glob, which only matches
// once absolute targets are normalized against the right project root.
func anchoredPathDispatcher(projectDir string) *Dispatcher {
	paths := guard.NewPathGuard(&config.PathsConfig{
		Protected: []string{"config/production/**"},
	}, false)
	return New(nil, paths, nil, nil, projectDir)
}

func TestDispatchPathMatchingUsesEventCwd(t *testing.T) {
	d := anchoredPathDispatcher("")

	out := d.Dispatch([]byte(
		`{"hook_event_name":"PreToolUse","tool_name":"Write","cwd":"/proj",` +
			`"tool_input":{"file_path":"/proj/config/production/db.yaml","content":"x"}}`))
	require.True(t, out.Block, "the envelope cwd anchors path matching when no project dir is configured")
	assert.Contains(t, out.Reason, "config/production")
}

func TestDispatchProjectDirOverridesEventCwd(t *testing.T) {
	d := anchoredPathDispatcher("/proj")

	out := d.Dispatch([]byte(
		`{"hook_event_name":"PreToolUse","tool_name":"Write","cwd":"/elsewhere",` +
			`"tool_input":{"file_path":"/proj/config/production/db.yaml","content":"x"}}`))
	assert.True(t, out.Block, "an explicit project dir wins over the envelope cwd")
}

func TestDispatchCommandDescriptionAudited(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch(preToolUse("Bash",
		`{"command":"ls -la","description":"List repository contents"}`))
	assert.False(t, out.Block)

	lines := f.auditLines(t, audit.ConcernCommands)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `detail="List repository contents"`)
}

func TestDispatchAllowsUnmediatedTool(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch(preToolUse("Read", `{"file_path":".env"}`))
	assert.False(t, out.Block, "read-only tools are outside the mediation set")

	lines := f.auditLines(t, audit.ConcernEvents)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "decision=allow")
}

func TestDispatchFailsOpenOnMalformedEnvelope(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{`{not json`, `{"hook_event_name":"SomethingNew"}`} {
		out := f.d.Dispatch([]byte(raw))
		assert.False(t, out.Block, "parse failure must not block: %s", raw)
		assert.Contains(t, out.Reason, "failing open")
	}

	lines := f.auditLines(t, audit.ConcernFailures)
	require.Len(t, lines, 2, "every fail-open is on the record")
	assert.Contains(t, lines[0], "failing open")
}

func TestDispatchPostInvocationAudited(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch([]byte(
		`{"hook_event_name":"PostToolUse","tool_name":"Bash","tool_input":{"command":"ls"},"session_id":"sess-1"}`))
	assert.False(t, out.Block)
	assert.Len(t, f.auditLines(t, audit.ConcernEvents), 1)
}

func TestDispatchToolFailureAudited(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch([]byte(
		`{"hook_event_name":"PostToolUseFailure","tool_name":"Bash","error":"exit status 1"}`))
	assert.False(t, out.Block)

	lines := f.auditLines(t, audit.ConcernFailures)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "exit status 1")
	assert.Contains(t, lines[0], `op="Bash"`)
}

func TestDispatchPromptAudited(t *testing.T) {
	f := newFixture(t)

	long := strings.Repeat("please fix the build ", 40)
	out := f.d.Dispatch([]byte(fmt.Sprintf(
		`{"hook_event_name":"UserPromptSubmit","prompt":%q}`, long)))
	assert.False(t, out.Block)

	lines := f.auditLines(t, audit.ConcernPrompts)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "please fix the build")
	assert.Less(t, len(lines[0]), len(long), "prompt text is excerpted, not stored whole")
}

func TestExcerptKeepsRuneBoundaries(t *testing.T) {
	// Three-byte runes guarantee the byte limit lands mid-sequence.
	long := strings.Repeat("界", 200)

	got := excerpt(long)
	assert.True(t, utf8.ValidString(got), "truncation must back up to a rune boundary")
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), promptExcerptLimit+3)

	short := "héllo wörld"
	assert.Equal(t, short, excerpt(short), "text within the limit is untouched")
}

func TestDispatchStopWithoutLoop(t *testing.T) {
	f := newFixture(t)

	out := f.d.Dispatch([]byte(`{"hook_event_name":"Stop","session_id":"sess-1"}`))
	assert.False(t, out.Block)
	assert.Len(t, f.auditLines(t, audit.ConcernLoop), 1)
}

func TestDispatchStopContinuesActiveLoop(t *testing.T) {
	f := newFixture(t)

	_, err := f.loops.Setup(loop.SetupParams{
		Session:         "sess-1",
		Task:            "Keep fixing tests until green.",
		MaxIterations:   5,
		CompletionToken: "DONE",
	})
	require.NoError(t, err)

	out := f.d.Dispatch([]byte(`{"hook_event_name":"Stop","session_id":"sess-1"}`))
	require.True(t, out.Block)
	require.NotNil(t, out.Loop)
	assert.True(t, out.Loop.Continue)
	assert.Equal(t, 2, out.Loop.Iteration)
	assert.Equal(t, "Keep fixing tests until green.", out.Loop.Task)

	lines := f.auditLines(t, audit.ConcernLoop)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "decision=block")
	assert.Contains(t, lines[0], "iteration 2/5")
}

func TestDispatchStopPersistenceFailure(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not bind as root")
	}

	base := t.TempDir()
	blocked := filepath.Join(base, "loops")
	require.NoError(t, os.MkdirAll(blocked, 0o750))

	store := loop.NewStore(blocked)
	loops := loop.NewController(store, 3)
	_, err := loops.Setup(loop.SetupParams{
		Session:         "sess-1",
		Task:            "task",
		MaxIterations:   5,
		CompletionToken: "DONE",
	})
	require.NoError(t, err)

	// Make the directory unwritable so the continuation save fails.
	require.NoError(t, os.Chmod(blocked, 0o500))
	t.Cleanup(func() { os.Chmod(blocked, 0o750) })

	d := New(nil, nil, loops, nil, "")
	out := d.Dispatch([]byte(`{"hook_event_name":"Stop","session_id":"sess-1"}`))
	assert.True(t, out.PersistenceFailure)
	assert.False(t, out.Block, "an unpersistable loop must not hold the session")
}

func TestDispatchOneAuditEntryPerEvent(t *testing.T) {
	f := newFixture(t)

	events := [][]byte{
		preToolUse("Bash", `{"command":"rm -rf /"}`),
		preToolUse("Bash", `{"command":"ls"}`),
		preToolUse("Write", `{"file_path":"notes.md","content":"hi"}`),
		[]byte(`{"hook_event_name":"UserPromptSubmit","prompt":"hello"}`),
		[]byte(`{"hook_event_name":"Stop","session_id":"s"}`),
		[]byte(`bad json`),
	}
	for _, e := range events {
		f.d.Dispatch(e)
	}

	assert.Equal(t, len(events), f.totalAuditLines(t))
}

func TestDispatchNilComponentsAllow(t *testing.T) {
	d := New(nil, nil, nil, nil, "")

	out := d.Dispatch(preToolUse("Bash", `{"command":"rm -rf /"}`))
	assert.False(t, out.Block, "an unwired guard cannot block")

	out = d.Dispatch([]byte(`{"hook_event_name":"Stop"}`))
	assert.False(t, out.Block)
}
