package enrichment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Implementations ---

// scriptedInvoker returns canned results in order, then repeats the last one.
type scriptedInvoker struct {
	mu      sync.Mutex
	script  []InvokeResult
	calls   int
	inUse   int32
	maxSeen int32
	delay   time.Duration
}

func (m *scriptedInvoker) Invoke(_ context.Context, _ string) InvokeResult {
	current := atomic.AddInt32(&m.inUse, 1)
	defer atomic.AddInt32(&m.inUse, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if current <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, current) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++
	return m.script[idx]
}

// staticPrompts serves one instruction for every source.
type staticPrompts struct {
	instruction string
	err         error
}

func (p *staticPrompts) FetchPrompt(_ context.Context, _ types.Source) (string, error) {
	return p.instruction, p.err
}

func (p *staticPrompts) Close() error { return nil }

func testNotice() types.Notice {
	return &types.OpenTenderNotice{
		NoticeCommon: types.NoticeCommon{
			Title:       "Harbour dredging works",
			Description: "Dredging of the main navigation channel.",
			TenderID:    "HB-311",
			Tags:        []string{"marine"},
		},
		Buyer: "Port Authority",
	}
}

func newTestSummarizer(invoker ModelInvoker, delays *[]time.Duration) *Summarizer {
	s := NewSummarizer(invoker, &staticPrompts{instruction: "Summarize:"}, DefaultConfig(), zerolog.Nop())
	s.sleep = func(_ context.Context, d time.Duration) {
		if delays != nil {
			*delays = append(*delays, d)
		}
	}
	return s
}

// --- Test Cases ---

func TestSummarizer_Success(t *testing.T) {
	invoker := &scriptedInvoker{script: []InvokeResult{
		{Kind: OutcomeOK, Summary: "Dredging contract for the main channel."},
	}}
	s := newTestSummarizer(invoker, nil)

	summary := s.Summarize(context.Background(), testNotice())
	assert.Equal(t, "Dredging contract for the main channel.", summary)
	assert.Equal(t, 1, invoker.calls)
}

func TestSummarizer_ThrottledThenSucceeds(t *testing.T) {
	invoker := &scriptedInvoker{script: []InvokeResult{
		{Kind: OutcomeThrottled, Err: errors.New("throttled")},
		{Kind: OutcomeThrottled, Err: errors.New("throttled")},
		{Kind: OutcomeOK, Summary: "Third time lucky."},
	}}
	var delays []time.Duration
	s := newTestSummarizer(invoker, &delays)

	summary := s.Summarize(context.Background(), testNotice())
	assert.Equal(t, "Third time lucky.", summary)
	assert.Equal(t, 3, invoker.calls)
	require.Len(t, delays, 2, "two throttles mean two backoff waits")
}

func TestSummarizer_ExhaustedRetriesFallBack(t *testing.T) {
	invoker := &scriptedInvoker{script: []InvokeResult{
		{Kind: OutcomeThrottled, Err: errors.New("throttled")},
	}}
	var delays []time.Duration
	s := newTestSummarizer(invoker, &delays)

	summary := s.Summarize(context.Background(), testNotice())
	assert.NotEmpty(t, summary, "enrichment must always produce a summary")
	assert.Contains(t, summary, "Summary unavailable")
	assert.Contains(t, summary, "Harbour dredging works")
	assert.Equal(t, 5, invoker.calls, "five attempts before degrading")
	assert.Len(t, delays, 4, "no backoff after the final attempt")
}

func TestSummarizer_FatalErrorIsNotRetried(t *testing.T) {
	invoker := &scriptedInvoker{script: []InvokeResult{
		{Kind: OutcomeFatal, Err: errors.New("access denied")},
	}}
	var delays []time.Duration
	s := newTestSummarizer(invoker, &delays)

	summary := s.Summarize(context.Background(), testNotice())
	assert.Contains(t, summary, "Summary unavailable")
	assert.Equal(t, 1, invoker.calls, "fatal outcomes surface immediately")
	assert.Empty(t, delays)
}

func TestSummarizer_EmptyModelOutputFallsBack(t *testing.T) {
	invoker := &scriptedInvoker{script: []InvokeResult{
		{Kind: OutcomeOK, Summary: "   "},
	}}
	s := newTestSummarizer(invoker, nil)

	summary := s.Summarize(context.Background(), testNotice())
	assert.Contains(t, summary, "Summary unavailable")
}

func TestSummarizer_PromptStoreFailureDegrades(t *testing.T) {
	invoker := &scriptedInvoker{script: []InvokeResult{
		{Kind: OutcomeOK, Summary: "Still summarized."},
	}}
	s := NewSummarizer(invoker, &staticPrompts{err: errors.New("ssm down")}, DefaultConfig(), zerolog.Nop())

	summary := s.Summarize(context.Background(), testNotice())
	assert.Equal(t, "Still summarized.", summary, "a broken prompt store must not block enrichment")
}

func TestSummarizer_BackoffDelayBounds(t *testing.T) {
	s := NewSummarizer(&scriptedInvoker{script: []InvokeResult{{Kind: OutcomeOK}}}, &staticPrompts{}, DefaultConfig(), zerolog.Nop())

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}
	for i, base := range expected {
		attempt := i + 1
		// Jitter is random; sample repeatedly to exercise the range.
		for sample := 0; sample < 50; sample++ {
			delay := s.backoffDelay(attempt)
			lower := time.Duration(float64(base) * 0.75)
			upper := time.Duration(float64(base) * 1.25)
			assert.GreaterOrEqual(t, delay, lower, "attempt %d", attempt)
			assert.LessOrEqual(t, delay, upper, "attempt %d", attempt)
		}
	}
}

func TestSummarizer_ConcurrencyCap(t *testing.T) {
	invoker := &scriptedInvoker{
		script: []InvokeResult{{Kind: OutcomeOK, Summary: "done"}},
		delay:  20 * time.Millisecond,
	}
	s := newTestSummarizer(invoker, nil)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Summarize(context.Background(), testNotice())
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, invoker.calls)
	assert.LessOrEqual(t, invoker.maxSeen, int32(3), "at most 3 model calls in flight")
}

func TestSummarizer_CancelledContextFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoker := &scriptedInvoker{script: []InvokeResult{{Kind: OutcomeOK, Summary: "unreached"}}}
	s := newTestSummarizer(invoker, nil)

	summary := s.Summarize(ctx, testNotice())
	assert.Contains(t, summary, "Summary unavailable")
	assert.Equal(t, 0, invoker.calls, "semaphore acquire fails on a dead context")
}
