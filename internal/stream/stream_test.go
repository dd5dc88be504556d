// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HELPERS
// =============================================================================

// frame renders one data record carrying delta.
func frame(delta string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": delta}}},
	})
	return "data: " + string(b) + "\n"
}

// chunkedReader returns each chunk from a separate Read call.
type chunkedReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func chunks(parts ...string) *chunkedReader {
	r := &chunkedReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

// recordingSink records every write.
type recordingSink struct {
	mu     sync.Mutex
	writes []string
}

func (s *recordingSink) Update(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, content)
	return nil
}

func (s *recordingSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return ""
	}
	return s.writes[len(s.writes)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// fakeTimer captures AfterFunc callbacks so tests fire them explicitly.
type fakeTimer struct {
	mu      sync.Mutex
	armed   []func()
	stopped int
}

type fakeHandle struct {
	t   *fakeTimer
	idx int
}

func (h fakeHandle) Stop() bool {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	h.t.stopped++
	h.t.armed[h.idx] = nil
	return true
}

func (f *fakeTimer) AfterFunc(_ time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = append(f.armed, fn)
	return fakeHandle{t: f, idx: len(f.armed) - 1}
}

func (f *fakeTimer) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fn := range f.armed {
		if fn != nil {
			n++
		}
	}
	return n
}

func (f *fakeTimer) fireAll() {
	f.mu.Lock()
	fns := append([]func(){}, f.armed...)
	for i := range f.armed {
		f.armed[i] = nil
	}
	f.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

// =============================================================================
// LINE BUFFER TESTS
// =============================================================================

func TestLineBuffer_RetainsPartialLine(t *testing.T) {
	var b LineBuffer

	assert.Empty(t, b.Feed([]byte("data: ab")))
	assert.Equal(t, "data: ab", b.Pending())

	lines := b.Feed([]byte("c\r\ndata: d\nrest"))
	assert.Equal(t, []string{"data: abc", "data: d"}, lines)
	assert.Equal(t, "rest", b.Pending())

	b.Reset()
	assert.Empty(t, b.Pending())
}

func TestLineBuffer_SplitMultibyteRune(t *testing.T) {
	var b LineBuffer
	word := []byte("héllo\n")
	// Split inside the two-byte é.
	assert.Empty(t, b.Feed(word[:2]))
	lines := b.Feed(word[2:])
	require.Len(t, lines, 1)
	assert.Equal(t, "héllo", lines[0])
}

func TestLineBuffer_DiscardsOversizedFragment(t *testing.T) {
	var discarded []int
	b := LineBuffer{OnDiscard: func(size int) { discarded = append(discarded, size) }}

	b.Feed(bytes.Repeat([]byte("x"), MaxLineSize+1))
	assert.Empty(t, b.Pending())
	assert.Equal(t, []int{MaxLineSize + 1}, discarded)

	lines := b.Feed([]byte("tail\ndata: ok\n"))
	assert.Equal(t, []string{"tail", "data: ok"}, lines)
	assert.Len(t, discarded, 1)
}

// =============================================================================
// FRAME TESTS
// =============================================================================

func TestParseFrame(t *testing.T) {
	tests := []struct {
		line    string
		payload string
		ok      bool
	}{
		{"data: {}", "{}", true},
		{"data: [DONE]", "[DONE]", true},
		{"data:{}", "", false},
		{"event: message", "", false},
		{": keepalive", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			payload, ok := ParseFrame(tc.line)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestDecodeDelta(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		delta     string
		ok        bool
		malformed bool
	}{
		{"content", `{"choices":[{"delta":{"content":"Hi"}}]}`, "Hi", true, false},
		{"done sentinel", "[DONE]", "", false, false},
		{"role only", `{"choices":[{"delta":{"role":"assistant"}}]}`, "", false, false},
		{"null content", `{"choices":[{"delta":{"content":null}}]}`, "", false, false},
		{"empty content", `{"choices":[{"delta":{"content":""}}]}`, "", false, false},
		{"no choices", `{"choices":[]}`, "", false, false},
		{"finish frame", `{"choices":[{"delta":{},"finish_reason":"stop"}]}`, "", false, false},
		{"malformed", `{not json`, "", false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			delta, ok, err := DecodeDelta(tc.payload)
			if tc.malformed {
				var mf *MalformedFrameError
				require.ErrorAs(t, err, &mf)
				assert.Equal(t, tc.payload, mf.Payload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.delta, delta)
		})
	}
}

// =============================================================================
// SCHEDULER TESTS
// =============================================================================

func TestScheduler_SingleOutstandingTimer(t *testing.T) {
	ft := &fakeTimer{}
	s := NewScheduler(time.Second, ft.AfterFunc)

	var got []string
	for _, v := range []string{"a", "ab", "abc"} {
		s.Schedule(func() { got = append(got, v) })
	}

	assert.Equal(t, 1, ft.active(), "pending updates must not stack timers")
	assert.True(t, s.Pending())

	ft.fireAll()
	assert.Equal(t, []string{"abc"}, got, "the timer runs the latest pending value")
	assert.False(t, s.Pending())

	s.Schedule(func() { got = append(got, "abcd") })
	assert.Equal(t, 1, ft.active(), "a new timer is armed after the previous one fired")
}

func TestScheduler_FlushRunsSynchronously(t *testing.T) {
	ft := &fakeTimer{}
	s := NewScheduler(time.Second, ft.AfterFunc)

	ran := ""
	s.Schedule(func() { ran = "final" })
	require.True(t, s.Flush())
	assert.Equal(t, "final", ran)
	assert.Equal(t, 0, ft.active(), "flush stops the timer")
	assert.False(t, s.Flush(), "nothing left to flush")
	assert.Equal(t, 1, s.Runs())
}

func TestScheduler_StaleTimerCallbackIgnored(t *testing.T) {
	var captured []func()
	after := func(_ time.Duration, fn func()) Timer {
		captured = append(captured, fn)
		return time.NewTimer(time.Hour)
	}
	s := NewScheduler(time.Second, after)

	runs := 0
	s.Schedule(func() { runs++ })
	s.Flush()
	s.Schedule(func() { runs++ })

	// The first callback fires late, after Flush already handled its task.
	captured[0]()
	assert.Equal(t, 1, runs, "a superseded timer must not run the new task early")
	assert.True(t, s.Pending())

	captured[1]()
	assert.Equal(t, 2, runs)
}

func TestScheduler_Cancel(t *testing.T) {
	ft := &fakeTimer{}
	s := NewScheduler(time.Second, ft.AfterFunc)

	ran := false
	s.Schedule(func() { ran = true })
	s.Cancel()
	ft.fireAll()
	assert.False(t, ran)
	assert.False(t, s.Flush())
}

// =============================================================================
// ENGINE TESTS
// =============================================================================

func TestEngine_ScenarioA_SplitFrames(t *testing.T) {
	body := chunks(
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n",
		`data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n"+"data: [DONE]\n",
	)
	sink := &recordingSink{}

	text, err := NewEngine().Run(context.Background(), body, sink)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "Hello", sink.last())
}

func TestEngine_ScenarioB_SplitLine(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	body := chunks(
		`data: {"choi`,
		`ces":[{"delta":{"content":"X"}}]}`+"\n",
	)
	sink := &recordingSink{}

	text, err := NewEngine(WithMetrics(m)).Run(context.Background(), body, sink)
	require.NoError(t, err)
	assert.Equal(t, "X", text)
	assert.Equal(t, "X", sink.last())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deltas), "the delta is applied exactly once")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Malformed))
}

func TestEngine_MalformedFrameSkipped(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	body := chunks(
		"data: {not json\n",
		`data: {"choices":[{"delta":{"content":"Hi"}}]}`+"\n",
	)
	sink := &recordingSink{}

	text, err := NewEngine(WithLogger(logger)).Run(context.Background(), body, sink)
	require.NoError(t, err)
	assert.Equal(t, "Hi", text)
	assert.Equal(t, "Hi", sink.last())
	assert.Equal(t, 1, strings.Count(logBuf.String(), "skipping malformed stream frame"))
}

func TestEngine_ChunkingInvariance(t *testing.T) {
	deltas := []string{"The ", "quick ", "brøwn ", "fox ", "🦊", " jumps", "\n\n", "over."}
	var wire strings.Builder
	wire.WriteString(": comment\n")
	for i, d := range deltas {
		wire.WriteString(frame(d))
		if i == 3 {
			wire.WriteString("data: [DONE]\n")
		}
	}
	full := wire.String()
	want := strings.Join(deltas, "")

	single, err := NewEngine().Run(context.Background(), strings.NewReader(full), &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, want, single)

	for _, size := range []int{1, 2, 3, 7, 16, 64} {
		t.Run(fmt.Sprintf("chunk_%d", size), func(t *testing.T) {
			r := &chunkedReader{}
			for i := 0; i < len(full); i += size {
				end := i + size
				if end > len(full) {
					end = len(full)
				}
				r.chunks = append(r.chunks, []byte(full[i:end]))
			}
			sink := &recordingSink{}
			got, err := NewEngine().Run(context.Background(), r, sink)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, want, sink.last())
		})
	}

	t.Run("one_byte_reader", func(t *testing.T) {
		got, err := NewEngine().Run(context.Background(), iotest.OneByteReader(strings.NewReader(full)), &recordingSink{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestEngine_DoneDoesNotStopReading(t *testing.T) {
	body := strings.NewReader(frame("a") + "data: [DONE]\n" + frame("b"))
	text, err := NewEngine().Run(context.Background(), body, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestEngine_UnterminatedTailIgnored(t *testing.T) {
	body := strings.NewReader(frame("a") + `data: {"choices":[{"delta":{"content":"b"}}]}`)
	text, err := NewEngine().Run(context.Background(), body, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "a", text)
}

func TestEngine_CoalescingKeepsFinalDelta(t *testing.T) {
	pr, pw := io.Pipe()
	deltas := make([]string, 11)
	for i := range deltas {
		deltas[i] = fmt.Sprintf("d%d ", i)
	}

	go func() {
		for _, d := range deltas {
			_, _ = io.WriteString(pw, frame(d))
			time.Sleep(10 * time.Millisecond)
		}
		_ = pw.Close()
	}()

	sink := &recordingSink{}
	text, err := NewEngine(WithFlushInterval(50*time.Millisecond)).Run(context.Background(), pr, sink)
	require.NoError(t, err)

	want := strings.Join(deltas, "")
	assert.Equal(t, want, text)
	assert.Equal(t, want, sink.last(), "the final delta must reach the sink")
	assert.Less(t, sink.count(), len(deltas), "writes are coalesced")
}

func TestEngine_ReadErrorDropsPendingFlush(t *testing.T) {
	ft := &fakeTimer{}
	boom := errors.New("connection reset")
	body := &chunkedReader{chunks: [][]byte{[]byte(frame("partial"))}, err: boom}
	sink := &recordingSink{}

	text, err := NewEngine(WithAfterFunc(ft.AfterFunc)).Run(context.Background(), body, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "partial", se.Partial)
	assert.Equal(t, "partial", text)

	ft.fireAll()
	assert.Equal(t, 0, sink.count(), "no write after the stream failed")
}

func TestEngine_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine().Run(ctx, strings.NewReader(frame("x")), &recordingSink{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_OversizedRecordIsLogged(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	body := chunks(
		"data: "+strings.Repeat("x", MaxLineSize),
		"xx\n"+frame("ok"),
	)
	text, err := NewEngine(WithLogger(logger), WithMetrics(m)).Run(context.Background(), body, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, strings.Count(logBuf.String(), "discarding oversized stream record"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Malformed))
}

func TestEngine_SinkRejectionIsLogged(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	sink := SinkFunc(func(string) error { return errors.New("closed") })

	text, err := NewEngine(WithLogger(logger)).Run(context.Background(), strings.NewReader(frame("x")), sink)
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.Contains(t, logBuf.String(), "stream write rejected")
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	body := strings.NewReader(frame("a") + "data: {bad\n" + frame("b") + "data: [DONE]\n")
	_, err = NewEngine(WithMetrics(m)).Run(context.Background(), body, &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Frames))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deltas))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Malformed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Streams.WithLabelValues("ok")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice fails")
}
