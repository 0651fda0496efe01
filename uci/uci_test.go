package uci

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/crazybeth/crazybeth/engine"
	"github.com/crazybeth/crazybeth/search"
)

// safeBuffer guards concurrent writes from the background search
// goroutine handleGo spawns against reads from the test.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type uniformExecutor struct{ width int }

func (u *uniformExecutor) PredictBatch(ctx context.Context, planes *tensor.Dense, batch int) ([]float32, [][]float32, error) {
	values := make([]float32, batch)
	policies := make([][]float32, batch)
	for i := range policies {
		policies[i] = make([]float32, u.width)
	}
	return values, policies, nil
}

func (u *uniformExecutor) PolicyWidth() int  { return u.width }
func (u *uniformExecutor) IsPolicyMap() bool { return false }

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "net.pb"), []byte("graph"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "net.params"), []byte("weights"), 0o644))

	opts := search.DefaultOptions()
	opts.Threads = 1
	opts.BatchSize = 1
	return engine.New(engine.Config{
		Options:  opts,
		ModelDir: dir,
		Loader:   func(string, string) (engine.Executor, error) { return &uniformExecutor{width: 4096}, nil },
		Labels:   []string{"e2e4", "d2d4", "g1f3"},
		Seed:     1,
	})
}

func runLines(t *testing.T, l *Loop, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	l.out = log.New(&out, "", 0)
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, l.Run(context.Background(), in))
	return out.String()
}

func TestHandleUCIPrintsIDAndOptionsAndUciok(t *testing.T) {
	l := NewLoop(newTestEngine(t), &bytes.Buffer{})
	out := runLines(t, l, "uci", "quit")
	require.Contains(t, out, "id name crazybeth")
	require.Contains(t, out, "option name Threads")
	require.Contains(t, out, "uciok")
}

func TestHandleIsReadyPrintsReadyok(t *testing.T) {
	l := NewLoop(newTestEngine(t), &bytes.Buffer{})
	out := runLines(t, l, "isready", "quit")
	require.Contains(t, out, "readyok")
}

func TestPositionAndGoProducesBestmove(t *testing.T) {
	l := NewLoop(newTestEngine(t), &bytes.Buffer{})
	out := &safeBuffer{}
	l.out = log.New(out, "", 0)

	in := strings.NewReader("position startpos\ngo movetime 100\n")
	require.NoError(t, l.Run(context.Background(), in))

	deadline := time.After(2 * time.Second)
	for !strings.Contains(out.String(), "bestmove") {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for bestmove")
		case <-time.After(10 * time.Millisecond):
		}
	}
	require.Contains(t, out.String(), "bestmove")
}

func TestSetOptionAppliesKnownOption(t *testing.T) {
	l := NewLoop(newTestEngine(t), &bytes.Buffer{})
	l.handleSetOption(strings.Fields("name Threads value 2"))
	require.Equal(t, 2, l.opts.Threads)
}

func TestSetOptionReachesEngine(t *testing.T) {
	eng := newTestEngine(t)
	l := NewLoop(eng, &bytes.Buffer{})
	l.handleSetOption(strings.Fields("name Threads value 2"))
	require.Equal(t, 2, eng.Options().Threads)
}

func TestSetOptionLeavesEngineUntouchedOnInvalidValue(t *testing.T) {
	eng := newTestEngine(t)
	l := NewLoop(eng, &bytes.Buffer{})
	before := eng.Options().Threads
	var out bytes.Buffer
	l.out = log.New(&out, "", 0)
	l.handleSetOption(strings.Fields("name Threads value not_a_number"))
	require.Contains(t, out.String(), "option_out_of_range")
	require.Equal(t, before, eng.Options().Threads)
	require.Equal(t, before, l.opts.Threads)
}

func TestSetOptionRejectsUnknownOption(t *testing.T) {
	l := NewLoop(newTestEngine(t), &bytes.Buffer{})
	var out bytes.Buffer
	l.out = log.New(&out, "", 0)
	l.handleSetOption(strings.Fields("name Not_A_Real_Option value 2"))
	require.Contains(t, out.String(), "unknown_option")
}

func TestParseLimitsReadsAllFields(t *testing.T) {
	l := parseLimits(strings.Fields("wtime 1000 btime 2000 winc 5 binc 6 movestogo 30 nodes 500 depth 4 movetime 100"))
	require.Equal(t, search.Limits{
		MoveTimeMS: 100,
		WTimeMS:    1000,
		BTimeMS:    2000,
		WIncMS:     5,
		BIncMS:     6,
		MovesToGo:  30,
		Nodes:      500,
		Depth:      4,
	}, l)
}

func TestParseSetOptionSplitsNameAndValue(t *testing.T) {
	name, value, ok := parseSetOption(strings.Fields("name Use_Raw_Network value true"))
	require.True(t, ok)
	require.Equal(t, "Use_Raw_Network", name)
	require.Equal(t, "true", value)
}
