package control

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/tsflow/internal/engine"
	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/ts"
)

type fakeInput struct {
	packets int
	served  int
	block   chan struct{}
	release sync.Once
}

func (f *fakeInput) Name() string                   { return "fake" }
func (f *fakeInput) GetOptions(args []string) error { return nil }
func (f *fakeInput) Start() error                   { return nil }
func (f *fakeInput) Stop() error                    { return nil }
func (f *fakeInput) IsRealTime() bool               { return false }
func (f *fakeInput) Bitrate() uint64                { return 0 }

func (f *fakeInput) Receive(pkts []ts.Packet, meta []ts.Metadata) (int, error) {
	n := f.packets - f.served
	if n == 0 {
		<-f.block
		return 0, nil
	}
	if n > len(pkts) {
		n = len(pkts)
	}
	for i := 0; i < n; i++ {
		pkts[i][0] = ts.SyncByte
	}
	f.served += n
	return n, nil
}

func (f *fakeInput) AbortInput() { f.release.Do(func() { close(f.block) }) }

type fakeProc struct {
	startErr error
	starts   atomic.Int32
}

func (p *fakeProc) Name() string                   { return "pass" }
func (p *fakeProc) GetOptions(args []string) error { return nil }
func (p *fakeProc) Stop() error                    { return nil }
func (p *fakeProc) IsRealTime() bool               { return false }

func (p *fakeProc) Start() error {
	p.starts.Add(1)
	return p.startErr
}

func (p *fakeProc) ProcessPacket(*ts.Packet, *ts.Metadata) plugin.Status {
	return plugin.Pass
}

type fakeOutput struct {
	sent atomic.Int64
}

func (o *fakeOutput) Name() string                   { return "sink" }
func (o *fakeOutput) GetOptions(args []string) error { return nil }
func (o *fakeOutput) Start() error                   { return nil }
func (o *fakeOutput) Stop() error                    { return nil }
func (o *fakeOutput) IsRealTime() bool               { return false }

func (o *fakeOutput) Send(pkts []ts.Packet, meta []ts.Metadata) error {
	o.sent.Add(int64(len(pkts)))
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startEngine runs a pipeline that serves a few packets and then idles
// until released, so control requests always find live stages.
func startEngine(t *testing.T) (*engine.Engine, *fakeInput, *fakeOutput, *fakeProc) {
	t.Helper()
	in := &fakeInput{packets: 10, block: make(chan struct{})}
	out := &fakeOutput{}
	proc := &fakeProc{}

	reg := plugin.NewRegistry()
	require.NoError(t, reg.RegisterInput("fake", func(*slog.Logger) plugin.Input { return in }))
	require.NoError(t, reg.RegisterProcessor("pass", func(*slog.Logger) plugin.Processor { return proc }))
	require.NoError(t, reg.RegisterOutput("sink", func(*slog.Logger) plugin.Output { return out }))

	eng, err := engine.New(engine.Options{
		Input:      plugin.Spec{Name: "fake"},
		Processors: []plugin.Spec{{Name: "pass"}},
		Output:     plugin.Spec{Name: "sink"},
	}, reg, testLogger())
	require.NoError(t, err)
	require.NoError(t, eng.Start())

	t.Cleanup(func() {
		in.AbortInput()
		eng.Wait()
	})
	return eng, in, out, proc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListPlugins(t *testing.T) {
	t.Parallel()

	eng, _, _, _ := startEngine(t)
	h := NewServer(":0", eng, testLogger()).Handler()

	rec := do(t, h, http.MethodGet, "/api/plugins", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"kind":"input"`)
	assert.Contains(t, body, `"kind":"processor"`)
	assert.Contains(t, body, `"kind":"output"`)
	assert.Contains(t, body, `"name":"pass"`)
}

func TestSuspendAndResume(t *testing.T) {
	t.Parallel()

	eng, _, _, _ := startEngine(t)
	h := NewServer(":0", eng, testLogger()).Handler()

	rec := do(t, h, http.MethodPost, "/api/plugins/1/suspend", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, eng.Stages()[1].Suspended)

	rec = do(t, h, http.MethodPost, "/api/plugins/1/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, eng.Stages()[1].Suspended)

	rec = do(t, h, http.MethodPost, "/api/plugins/0/suspend", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "the input cannot be suspended")

	rec = do(t, h, http.MethodPost, "/api/plugins/nope/suspend", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestartPlugin(t *testing.T) {
	t.Parallel()

	eng, _, _, proc := startEngine(t)
	h := NewServer(":0", eng, testLogger()).Handler()

	rec := do(t, h, http.MethodPost, "/api/plugins/1/restart", `{"sameArgs":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "restarted")
	assert.Equal(t, int32(2), proc.starts.Load())

	rec = do(t, h, http.MethodPost, "/api/plugins/1/restart", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "new args are required unless sameArgs")

	rec = do(t, h, http.MethodPost, "/api/plugins/9/restart", `{"sameArgs":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExitAbortsPipeline(t *testing.T) {
	t.Parallel()

	eng, _, _, _ := startEngine(t)
	h := NewServer(":0", eng, testLogger()).Handler()

	rec := do(t, h, http.MethodPost, "/api/exit", "")
	require.Equal(t, http.StatusOK, rec.Code)

	done := make(chan error, 1)
	go func() { done <- eng.Wait() }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, engine.ErrPipelineAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after exit")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	eng, _, out, _ := startEngine(t)
	h := NewServer(":0", eng, testLogger()).Handler()

	require.Eventually(t, func() bool { return out.sent.Load() == 10 },
		time.Second, time.Millisecond)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tsflow_packets_total")
}
