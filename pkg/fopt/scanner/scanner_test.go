package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fopt/pkg/fopt/filter"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// recorder collects events and signals when a terminal event arrives.
type recorder struct {
	mu       sync.Mutex
	events   []types.Event
	terminal chan types.Event
	hook     func(types.Event)
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan types.Event, 4)}
}

func (r *recorder) emit(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(ev)
	}
	if ev.Type == types.EventTerminal {
		r.terminal <- ev
	}
}

func (r *recorder) wait(t *testing.T) types.Event {
	t.Helper()
	select {
	case ev := <-r.terminal:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return types.Event{}
	}
}

func (r *recorder) ofType(typ types.EventType) []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) logs(kind types.LogKind) []string {
	var out []string
	for _, ev := range r.ofType(types.EventLog) {
		if ev.Kind == kind {
			out = append(out, ev.Message)
		}
	}
	return out
}

func makeFile(t *testing.T, path string, size int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.ProgressStep = 1
	return opts
}

func TestScanThresholdScenario(t *testing.T) {
	data := filepath.Join(t.TempDir(), "data")
	makeFile(t, filepath.Join(data, "a.bin"), 300*types.MiB)
	makeFile(t, filepath.Join(data, "b.txt"), 10*types.MiB)

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	job, err := m.Start(250*types.MiB, []string{data})
	require.NoError(t, err)

	term := rec.wait(t)
	assert.Equal(t, types.StatusCompleted, term.Status)
	assert.Equal(t, job.ID(), term.JobID)

	results := rec.ofType(types.EventResult)
	require.NotEmpty(t, results)
	final := results[len(results)-1].Files
	require.Len(t, final, 1)
	assert.Equal(t, filepath.Join(data, "a.bin"), final[0].Path)
	assert.Equal(t, "data/a.bin", final[0].Name)
	assert.Equal(t, 300*types.MiB, final[0].SizeBytes)
	assert.Equal(t, "300 MiB", final[0].SizeFormatted)
	assert.Equal(t, "executable", final[0].Type)

	assert.Equal(t, types.StatusCompleted, job.Status())
	assert.Len(t, job.Results(), 1)
	assert.Nil(t, m.Active())
}

func TestScanIncludesEveryMatchExactlyOnce(t *testing.T) {
	root := t.TempDir()
	sizes := map[string]int64{
		"x/one.mkv":         5000,
		"x/y/two.pdf":       4096,
		"x/y/z/three.iso":   9000,
		"small.txt":         4095,
		"x/y/z/tiny.mp3":    10,
		"exact/edge.bin":    4096,
		"other/zero-length": 0,
	}
	for rel, size := range sizes {
		makeFile(t, filepath.Join(root, rel), size)
	}

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	_, err := m.Start(4096, []string{root, root})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)

	results := rec.ofType(types.EventResult)
	final := results[len(results)-1].Files

	seen := map[string]int{}
	for _, f := range final {
		seen[f.Path]++
	}
	for rel, size := range sizes {
		path := filepath.Join(root, rel)
		if size >= 4096 {
			assert.Equal(t, 1, seen[path], rel)
		} else {
			assert.Zero(t, seen[path], rel)
		}
	}

	for i := 1; i < len(final); i++ {
		assert.GreaterOrEqual(t, final[i-1].SizeBytes, final[i].SizeBytes)
	}
	assert.Len(t, rec.logs(types.LogFound), 4)
}

func TestScanProgressMonotonicAndHundredOnlyAtCompletion(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		makeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i%7), fmt.Sprintf("f%02d.dat", i)), int64(i))
	}

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	_, err := m.Start(0, []string{root})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)

	progress := rec.ofType(types.EventProgress)
	require.NotEmpty(t, progress)

	last := -1
	hundreds := 0
	for _, p := range progress {
		assert.GreaterOrEqual(t, p.Percentage, last)
		last = p.Percentage
		if p.Percentage == 100 {
			hundreds++
		}
	}
	assert.Equal(t, 1, hundreds)
	assert.Equal(t, 100, progress[len(progress)-1].Percentage)
}

func TestScanCheckpointsFollowProgressThrottle(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 25; i++ {
		makeFile(t, filepath.Join(root, fmt.Sprintf("f%02d.bin", i)), 100)
	}

	opts := DefaultOptions()
	opts.ProgressStep = 10
	opts.ProgressInterval = time.Hour

	rec := newRecorder()
	m := NewManager(opts, rec.emit)
	defer m.Close()

	_, err := m.Start(1, []string{root})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)

	assert.Len(t, rec.logs(types.LogFound), 25)

	results := rec.ofType(types.EventResult)
	require.Len(t, results, 3)
	assert.Len(t, results[0].Files, 10)
	assert.Len(t, results[1].Files, 20)
	assert.Len(t, results[2].Files, 25)
	assert.Equal(t, "f00.bin", filepath.Base(results[0].Files[0].Path))
}

func TestScanCancelAfterFirstMatch(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		makeFile(t, filepath.Join(root, name, "big.bin"), 2048)
	}

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	rec.hook = func(ev types.Event) {
		if ev.Type == types.EventLog && ev.Kind == types.LogFound {
			_ = m.Cancel(ev.JobID)
		}
	}

	job, err := m.Start(1024, []string{root})
	require.NoError(t, err)

	term := rec.wait(t)
	assert.Equal(t, types.StatusCancelled, term.Status)
	assert.Equal(t, types.StatusCancelled, job.Status())
	assert.True(t, job.Info().CancelRequest)

	assert.Len(t, rec.logs(types.LogFound), 1, "no match after the cancel is reported")
	assert.Len(t, rec.logs(types.LogCancelled), 1)
	for _, p := range rec.ofType(types.EventProgress) {
		assert.Less(t, p.Percentage, 100)
	}
	assert.Len(t, rec.ofType(types.EventTerminal), 1)
}

func TestScanCancelDuringCount(t *testing.T) {
	root := t.TempDir()
	makeFile(t, filepath.Join(root, "f.bin"), 10)

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	rec.hook = func(ev types.Event) {
		if ev.Type == types.EventLog && ev.Message == "Counting files..." {
			_ = m.Cancel(ev.JobID)
		}
	}

	_, err := m.Start(0, []string{root})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, rec.wait(t).Status)
	assert.Empty(t, rec.ofType(types.EventResult))
}

func TestScanInProgress(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	gate := make(chan struct{})
	var once sync.Once
	rec.hook = func(types.Event) {
		once.Do(func() { <-gate })
	}

	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	first, err := m.Start(0, []string{root})
	require.NoError(t, err)
	assert.Equal(t, first, m.Active())

	_, err = m.Start(0, []string{root})
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(gate)
	rec.wait(t)

	second, err := m.Start(0, []string{root})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	rec.wait(t)
}

func TestScanFailsWithoutAccessibleFolders(t *testing.T) {
	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	_, err := m.Start(0, []string{filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, rec.wait(t).Status)
	assert.NotEmpty(t, rec.logs(types.LogError))
}

func TestScanUsesDefaultFolders(t *testing.T) {
	root := t.TempDir()
	makeFile(t, filepath.Join(root, "movie.mp4"), 100)

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit, WithDefaultFolders(func() []string { return []string{root} }))
	defer m.Close()

	job, err := m.Start(50, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{root}, job.Folders())
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)
	assert.Len(t, job.Results(), 1)
}

func TestScanFiltersAndExclusions(t *testing.T) {
	root := t.TempDir()
	makeFile(t, filepath.Join(root, "keep", "movie.mkv"), 100)
	makeFile(t, filepath.Join(root, "keep", "doc.pdf"), 100)
	makeFile(t, filepath.Join(root, "skip", "clip.mp4"), 100)

	f, err := filter.New(
		filter.WithTypeGroups("video"),
		filter.WithExclude(filepath.ToSlash(filepath.Join(root, "skip"))),
	)
	require.NoError(t, err)

	opts := fastOptions()
	opts.Filter = f

	rec := newRecorder()
	m := NewManager(opts, rec.emit)
	defer m.Close()

	job, err := m.Start(1, []string{root})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)

	results := job.Results()
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(root, "keep", "movie.mkv"), results[0].Path)
	assert.NotEmpty(t, rec.logs(types.LogIgnored))
}

func TestStartWithTypesKeepsExclusions(t *testing.T) {
	root := t.TempDir()
	makeFile(t, filepath.Join(root, "a", "song.mp3"), 100)
	makeFile(t, filepath.Join(root, "a", "movie.mkv"), 100)
	makeFile(t, filepath.Join(root, "b", "other.mp3"), 100)

	base, err := filter.New(filter.WithExclude(filepath.ToSlash(filepath.Join(root, "b"))))
	require.NoError(t, err)
	opts := fastOptions()
	opts.Filter = base

	rec := newRecorder()
	m := NewManager(opts, rec.emit)
	defer m.Close()

	job, err := m.StartWithTypes(1, []string{root}, []string{"audio"})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)

	results := job.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "song.mp3", filepath.Base(results[0].Path))

	_, err = m.StartWithTypes(1, []string{root}, []string{"nope"})
	assert.ErrorIs(t, err, filter.ErrUnknownTypeGroup)
}

func TestScanSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	makeFile(t, filepath.Join(root, "open", "big.bin"), 100)
	locked := filepath.Join(root, "locked")
	makeFile(t, filepath.Join(locked, "hidden.bin"), 100)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	job, err := m.Start(1, []string{root})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)
	assert.Len(t, job.Results(), 1)
	assert.NotEmpty(t, rec.logs(types.LogIgnored))
}

func TestManagerCancelUnknownAndFinished(t *testing.T) {
	rec := newRecorder()
	m := NewManager(fastOptions(), rec.emit)
	defer m.Close()

	assert.ErrorIs(t, m.Cancel("nope"), ErrUnknownJob)

	job, err := m.Start(0, []string{t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, rec.wait(t).Status)

	require.NoError(t, m.Cancel(job.ID()))
	assert.Equal(t, types.StatusCompleted, job.Status())
}

func TestManagerRejectsNegativeThreshold(t *testing.T) {
	m := NewManager(fastOptions(), nil)
	defer m.Close()

	_, err := m.Start(-1, []string{t.TempDir()})
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestManagerOnFinish(t *testing.T) {
	root := t.TempDir()
	makeFile(t, filepath.Join(root, "a.bin"), 10)

	done := make(chan types.JobInfo, 1)
	m := NewManager(fastOptions(), nil, WithOnFinish(func(info types.JobInfo, files []types.FileEntry) {
		assert.Len(t, files, 1)
		done <- info
	}))
	defer m.Close()

	job, err := m.Start(1, []string{root})
	require.NoError(t, err)

	select {
	case info := <-done:
		assert.Equal(t, job.ID(), info.ID)
		assert.Equal(t, types.StatusCompleted, info.Status)
		assert.NotNil(t, info.FinishedAt)
		assert.Equal(t, int64(1), info.Processed)
	case <-time.After(10 * time.Second):
		t.Fatal("finish callback not called")
	}
}
