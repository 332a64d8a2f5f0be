package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/windfall/storyspeak/internal/audio"
	"github.com/windfall/storyspeak/internal/lesson"
)

// Canned mock responses.
const (
	MockTranscript = "이것은 테스트용 음성 인식 결과입니다. 마이크가 잘 작동하고 있네요!"
	MockScore      = 85
	MockFeedback   = "전반적으로 훌륭합니다! 'shining' 발음에서 'sh' 소리를 조금 더 부드럽게 내보세요."
	MockGreeting   = "Hello! I heard you had a delicious lunch. Can you tell me more about it?"
	MockReply      = "That sounds wonderful! What did you enjoy the most?"

	// mockSpeechMs is the length of the silent clip GenerateSpeech returns.
	mockSpeechMs = 500
)

// MockCall records one call made to a Mock.
type MockCall struct {
	Op    Op
	Input string
}

// Mock is a deterministic provider for development and tests. Errors and
// delays can be injected per operation.
type Mock struct {
	mu     sync.Mutex
	calls  []MockCall
	errs   map[Op]error
	delays map[Op]time.Duration
	lesson *lesson.Lesson
}

// NewMock creates a mock serving the canned park lesson.
func NewMock() *Mock {
	return &Mock{
		errs:   make(map[Op]error),
		delays: make(map[Op]time.Duration),
		lesson: lesson.MockLesson(),
	}
}

// FailWith makes op return err until cleared with a nil err.
func (m *Mock) FailWith(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// Delay makes op wait d (or until its context ends) before answering.
func (m *Mock) Delay(op Op, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[op] = d
}

// SetLesson replaces the lesson GenerateLesson returns.
func (m *Mock) SetLesson(l *lesson.Lesson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lesson = l
}

// Calls returns the calls recorded so far.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times op was called.
func (m *Mock) CallCount(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *Mock) enter(ctx context.Context, op Op, input string) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Op: op, Input: input})
	err := m.errs[op]
	delay := m.delays[op]
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *Mock) GenerateLesson(ctx context.Context, story string, _ lesson.Level) (*lesson.Lesson, error) {
	if err := m.enter(ctx, OpGenerateLesson, story); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lesson.Clone(), nil
}

func (m *Mock) GenerateSpeech(ctx context.Context, text string) (*Speech, error) {
	if err := m.enter(ctx, OpGenerateSpeech, text); err != nil {
		return nil, err
	}
	return &Speech{PCM: audio.Silence(mockSpeechMs), SampleRate: audio.SampleRate}, nil
}

func (m *Mock) TranscribeAudio(ctx context.Context, a Audio) (string, error) {
	if err := m.enter(ctx, OpTranscribe, a.MIMEType); err != nil {
		return "", err
	}
	return MockTranscript, nil
}

func (m *Mock) EvaluatePronunciation(ctx context.Context, reference string, _ Audio) (*Evaluation, error) {
	if err := m.enter(ctx, OpEvaluate, reference); err != nil {
		return nil, err
	}
	return &Evaluation{Score: MockScore, Feedback: MockFeedback}, nil
}

func (m *Mock) Reply(ctx context.Context, _, _ string, history []Turn) (string, error) {
	input := ""
	if n := len(history); n > 0 {
		input = history[n-1].Text
	}
	if err := m.enter(ctx, OpPartnerReply, input); err != nil {
		return "", err
	}
	if len(history) == 0 {
		return MockGreeting, nil
	}
	return MockReply, nil
}
