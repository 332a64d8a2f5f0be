package session

import (
	"fmt"
	"strings"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/internal/lesson"
	"github.com/windfall/storyspeak/internal/practice"
)

var (
	ErrInvalidTransition = apperrors.Conflict("invalid transition")
	ErrBusy              = apperrors.Conflict("action already in progress")
	ErrNoCapture         = apperrors.Conflict("no active capture")
	ErrMicOff            = apperrors.Conflict("microphone is off")
	ErrConnecting        = apperrors.Conflict("partner is still connecting")
	ErrEmptyStory        = apperrors.Validation("story text is empty")
	ErrEmptyMessage      = apperrors.Validation("message text is empty")
)

// Notices shown to the learner after a failure.
const (
	NoticeGenerateFailed   = "Lesson generation failed. Please try again."
	NoticeTranscribeFailed = "Speech recognition failed. Please try again."
	NoticeEvaluateFailed   = "Pronunciation evaluation failed. Please try again."
	NoticeNoVocabulary     = "This lesson has no vocabulary to practice."
	NoticeMicPermission    = "Microphone permission is required. Please check your settings."
	NoticeReplyFailed      = "The conversation partner could not answer. Please try again."
)

// Options tune the practice rounds.
type Options struct {
	MaxBlanks              int
	AllowDuplicateMeanings bool
}

// Machine is the per-session screen state machine. It is not safe for
// concurrent use; the owner serializes access.
//
// Gateway calls are split into a Begin and a Complete transition so the
// owner can run the call without holding its lock.
type Machine struct {
	opts Options
	rng  practice.Rand

	state    State
	story    string
	level    lesson.Level
	lesson   *lesson.Lesson
	selected int

	busy    map[Action]bool
	capture CaptureKind
	notice  string
	epoch   int
	version uint64

	lastEvaluation   *gateway.Evaluation
	lastSentenceGame *GameResult
	lastWordGame     *GameResult
}

// NewMachine returns a machine on the input screen.
func NewMachine(opts Options, rng practice.Rand) *Machine {
	if opts.MaxBlanks < 1 {
		opts.MaxBlanks = 3
	}
	return &Machine{
		opts:  opts,
		rng:   rng,
		state: &InputState{},
		level: lesson.LevelBeginner,
		busy:  make(map[Action]bool),
	}
}

// Step returns the active screen.
func (m *Machine) Step() Step { return m.state.Step() }

// State returns the active per-screen state.
func (m *Machine) State() State { return m.state }

// Lesson returns the current lesson, which may be nil.
func (m *Machine) Lesson() *lesson.Lesson { return m.lesson }

// Busy reports whether an action class has a call in flight.
func (m *Machine) Busy(a Action) bool { return m.busy[a] }

// Capture returns the active capture kind, or "" when none.
func (m *Machine) Capture() CaptureKind { return m.capture }

// Version increases on every accepted transition.
func (m *Machine) Version() uint64 { return m.version }

func (m *Machine) changed() { m.version++ }

func invalid(trigger string, from Step) error {
	return apperrors.Conflict("invalid transition").WithDetails(map[string]any{
		"trigger": trigger,
		"from":    string(from),
	})
}

func (m *Machine) require(trigger string, steps ...Step) error {
	for _, s := range steps {
		if m.Step() == s {
			return nil
		}
	}
	return invalid(trigger, m.Step())
}

func (m *Machine) begin(a Action) error {
	if m.busy[a] {
		return ErrBusy
	}
	m.busy[a] = true
	return nil
}

// SetStory stores the draft story and level on the input screen.
func (m *Machine) SetStory(story string, level lesson.Level) error {
	if err := m.require("set story", StepInput); err != nil {
		return err
	}
	m.story = story
	m.level = level
	m.changed()
	return nil
}

// BeginGenerate validates the story and marks generation busy. It returns
// the inputs for the gateway call.
func (m *Machine) BeginGenerate() (string, lesson.Level, error) {
	if err := m.require("generate", StepInput); err != nil {
		return "", "", err
	}
	if strings.TrimSpace(m.story) == "" {
		return "", "", ErrEmptyStory
	}
	if err := m.begin(ActionGenerate); err != nil {
		return "", "", err
	}
	m.notice = ""
	m.changed()
	return m.story, m.level, nil
}

// CompleteGenerate finishes a generation call. On success the lesson is
// replaced and the machine moves to the lesson screen.
func (m *Machine) CompleteGenerate(l *lesson.Lesson, err error) {
	m.busy[ActionGenerate] = false
	defer m.changed()
	if err != nil {
		m.notice = NoticeGenerateFailed
		return
	}
	if m.Step() != StepInput {
		return
	}
	m.lesson = l
	m.selected = 0
	m.capture = ""
	m.state = &LessonState{}
}

// Back leaves the active screen. Practice screens return to the lesson and
// the lesson returns to the input screen. It reports the screen left.
func (m *Machine) Back() (Step, error) {
	from := m.Step()
	switch s := m.state.(type) {
	case *LessonState:
		m.state = &InputState{}
	case *PracticeState, *RoleplayState:
		m.state = &LessonState{}
	case *SentenceGameState:
		m.lastSentenceGame = &GameResult{Score: s.Game.Score, Total: s.Game.Total}
		m.state = &LessonState{}
	case *WordGameState:
		m.lastWordGame = &GameResult{Score: s.Game.Score, Total: s.Game.Total}
		m.state = &LessonState{}
	default:
		return from, invalid("back", from)
	}
	m.capture = ""
	m.changed()
	return from, nil
}

// StartPractice opens pronunciation practice for the selected sentence.
func (m *Machine) StartPractice() error {
	if err := m.require("practice", StepLesson); err != nil {
		return err
	}
	m.state = &PracticeState{}
	m.changed()
	return nil
}

// SelectSentence picks the sentence used by practice and TTS.
func (m *Machine) SelectSentence(index int) error {
	if err := m.require("select sentence", StepLesson, StepPractice); err != nil {
		return err
	}
	if index < 0 || index >= len(m.lesson.Sentences) {
		return apperrors.Validation(fmt.Sprintf("sentence index %d out of range", index))
	}
	m.selected = index
	m.clearResult()
	m.changed()
	return nil
}

// NextSentence advances the selected sentence, wrapping after the last.
func (m *Machine) NextSentence() error {
	if err := m.require("next sentence", StepLesson, StepPractice); err != nil {
		return err
	}
	if n := len(m.lesson.Sentences); n > 0 {
		m.selected = (m.selected + 1) % n
	}
	m.clearResult()
	m.changed()
	return nil
}

func (m *Machine) clearResult() {
	if p, ok := m.state.(*PracticeState); ok {
		p.Result = nil
	}
}

// SelectedSentence returns the selected sentence index.
func (m *Machine) SelectedSentence() int { return m.selected }

// StartSentenceGame starts the fill-in-the-blank game.
func (m *Machine) StartSentenceGame(blankCount int) error {
	if err := m.require("sentence game", StepLesson); err != nil {
		return err
	}
	if blankCount < 1 || blankCount > m.opts.MaxBlanks {
		return apperrors.Validation(fmt.Sprintf("blank count must be between 1 and %d", m.opts.MaxBlanks))
	}
	g, err := practice.NewSentenceGame(m.lesson, blankCount, m.rng)
	if err != nil {
		return err
	}
	m.state = &SentenceGameState{Game: g}
	m.changed()
	return nil
}

func (m *Machine) sentenceGame(trigger string) (*practice.SentenceGame, error) {
	s, ok := m.state.(*SentenceGameState)
	if !ok {
		return nil, invalid(trigger, m.Step())
	}
	return s.Game, nil
}

// SetGameAnswers records the typed answers for the current round.
func (m *Machine) SetGameAnswers(answers []string) error {
	g, err := m.sentenceGame("answer")
	if err != nil {
		return err
	}
	if err := g.SetAnswers(answers); err != nil {
		return err
	}
	m.changed()
	return nil
}

// CheckGame scores the current sentence-game round.
func (m *Machine) CheckGame() (*practice.Feedback, error) {
	g, err := m.sentenceGame("check answers")
	if err != nil {
		return nil, err
	}
	fb, err := g.Check()
	if err != nil {
		return nil, err
	}
	m.changed()
	return fb, nil
}

// NextGameSentence moves the sentence game forward.
func (m *Machine) NextGameSentence() error {
	g, err := m.sentenceGame("next sentence")
	if err != nil {
		return err
	}
	if err := g.Next(); err != nil {
		return err
	}
	if g.Finished {
		m.lastSentenceGame = &GameResult{Score: g.Score, Total: g.Total}
	}
	m.changed()
	return nil
}

// StartWordGame starts the vocabulary game. A lesson without vocabulary
// leaves the machine on the lesson screen with a notice.
func (m *Machine) StartWordGame() error {
	if err := m.require("word game", StepLesson); err != nil {
		return err
	}
	g, err := practice.NewWordGame(m.lesson, m.rng, m.opts.AllowDuplicateMeanings)
	if err != nil {
		m.notice = NoticeNoVocabulary
		m.changed()
		return err
	}
	m.state = &WordGameState{Game: g}
	m.changed()
	return nil
}

// AnswerWord scores a flashcard selection. It returns the card index so the
// owner can schedule the advance.
func (m *Machine) AnswerWord(selected string) (*practice.Choice, int, error) {
	s, ok := m.state.(*WordGameState)
	if !ok {
		return nil, 0, invalid("answer", m.Step())
	}
	c, err := s.Game.Answer(selected)
	if err != nil {
		return nil, 0, err
	}
	m.changed()
	return c, s.Game.Index, nil
}

// AdvanceWord moves past the answered card at index. It is a no-op when the
// game has moved on or was left.
func (m *Machine) AdvanceWord(index int) bool {
	s, ok := m.state.(*WordGameState)
	if !ok || s.Game.Index != index || !s.Game.Advance() {
		return false
	}
	if s.Game.Finished {
		m.lastWordGame = &GameResult{Score: s.Game.Score, Total: s.Game.Total}
	}
	m.changed()
	return true
}

// StartRoleplay opens the roleplay screen in the connecting state and
// returns its epoch.
func (m *Machine) StartRoleplay() (int, error) {
	if err := m.require("talk with AI", StepLesson, StepPractice); err != nil {
		return 0, err
	}
	m.epoch++
	m.capture = ""
	m.state = &RoleplayState{Epoch: m.epoch, Connecting: true, Messages: []Message{}}
	m.changed()
	return m.epoch, nil
}

func (m *Machine) roleplay(epoch int) (*RoleplayState, bool) {
	s, ok := m.state.(*RoleplayState)
	if !ok || s.Epoch != epoch {
		return nil, false
	}
	return s, true
}

// CompleteConnect ends the connecting phase with the partner's greeting.
func (m *Machine) CompleteConnect(epoch int, greeting string) bool {
	s, ok := m.roleplay(epoch)
	if !ok || !s.Connecting {
		return false
	}
	s.Connecting = false
	s.Messages = append(s.Messages, Message{Role: RoleAI, Text: greeting})
	m.changed()
	return true
}

// SetMic turns the roleplay microphone on or off. Turning it off releases a
// roleplay capture.
func (m *Machine) SetMic(on bool) error {
	s, ok := m.state.(*RoleplayState)
	if !ok {
		return invalid("toggle mic", m.Step())
	}
	s.MicOn = on
	if !on && m.capture == CaptureRoleplay {
		m.capture = ""
	}
	m.changed()
	return nil
}

// AddUserMessage appends the learner's line and returns the epoch and the
// conversation so far for the partner call.
func (m *Machine) AddUserMessage(text string) (int, []Message, error) {
	s, ok := m.state.(*RoleplayState)
	if !ok {
		return 0, nil, invalid("send message", m.Step())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil, ErrEmptyMessage
	}
	if s.Connecting {
		return 0, nil, ErrConnecting
	}
	s.Messages = append(s.Messages, Message{Role: RoleUser, Text: text})
	m.changed()
	return s.Epoch, append([]Message(nil), s.Messages...), nil
}

// AddPartnerMessage appends the partner's reply if the conversation is
// still the one it was requested for.
func (m *Machine) AddPartnerMessage(epoch int, text string) bool {
	s, ok := m.roleplay(epoch)
	if !ok {
		return false
	}
	s.Messages = append(s.Messages, Message{Role: RoleAI, Text: text})
	m.changed()
	return true
}

// FailPartner records a failed partner reply for the conversation at epoch.
func (m *Machine) FailPartner(epoch int) bool {
	if _, ok := m.roleplay(epoch); !ok {
		return false
	}
	m.notice = NoticeReplyFailed
	m.changed()
	return true
}

// StartCapture begins an audio capture for the active screen. Any earlier
// capture is released first.
func (m *Machine) StartCapture(kind CaptureKind) error {
	step, ok := kind.step()
	if !ok {
		return apperrors.Validation(fmt.Sprintf("unknown capture kind %q", kind))
	}
	if err := m.require("start capture", step); err != nil {
		return err
	}
	if kind == CaptureInput && m.busy[ActionGenerate] {
		return ErrBusy
	}
	if s, ok := m.state.(*RoleplayState); ok {
		if s.Connecting {
			return ErrConnecting
		}
		if !s.MicOn {
			return ErrMicOff
		}
	}
	m.capture = kind
	m.clearResult()
	m.changed()
	return nil
}

// StopCapture releases the active capture and returns its kind.
func (m *Machine) StopCapture() (CaptureKind, error) {
	if m.capture == "" {
		return "", ErrNoCapture
	}
	kind := m.capture
	m.capture = ""
	m.changed()
	return kind, nil
}

// FailCapture releases the capture after a permission failure.
func (m *Machine) FailCapture() {
	m.capture = ""
	if s, ok := m.state.(*RoleplayState); ok {
		s.MicOn = false
	}
	m.notice = NoticeMicPermission
	m.changed()
}

// BeginTranscribe marks transcription busy for a finished capture. It
// returns the roleplay epoch for roleplay captures.
func (m *Machine) BeginTranscribe(kind CaptureKind) (int, error) {
	var epoch int
	switch kind {
	case CaptureInput:
		if err := m.require("transcribe", StepInput); err != nil {
			return 0, err
		}
	case CaptureRoleplay:
		s, ok := m.state.(*RoleplayState)
		if !ok {
			return 0, invalid("transcribe", m.Step())
		}
		epoch = s.Epoch
	default:
		return 0, apperrors.Validation(fmt.Sprintf("capture kind %q is not transcribed", kind))
	}
	if err := m.begin(ActionTranscribe); err != nil {
		return 0, err
	}
	m.changed()
	return epoch, nil
}

// CompleteTranscribe applies a transcript. Input transcripts extend the
// story; roleplay transcripts become user messages. It reports whether a
// roleplay message was added.
func (m *Machine) CompleteTranscribe(kind CaptureKind, epoch int, text string, err error) bool {
	m.busy[ActionTranscribe] = false
	defer m.changed()
	if err != nil {
		m.notice = NoticeTranscribeFailed
		return false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch kind {
	case CaptureInput:
		if m.Step() != StepInput {
			return false
		}
		if m.story == "" {
			m.story = text
		} else {
			m.story = m.story + " " + text
		}
	case CaptureRoleplay:
		s, ok := m.roleplay(epoch)
		if !ok || s.Connecting {
			return false
		}
		s.Messages = append(s.Messages, Message{Role: RoleUser, Text: text})
		return true
	}
	return false
}

// Story returns the draft story and level.
func (m *Machine) Story() (string, lesson.Level) { return m.story, m.level }

// BeginEvaluate marks evaluation busy and returns the reference sentence
// and its index.
func (m *Machine) BeginEvaluate() (string, int, error) {
	if err := m.require("evaluate", StepPractice); err != nil {
		return "", 0, err
	}
	if m.selected >= len(m.lesson.Sentences) {
		return "", 0, apperrors.Validation("lesson has no sentences")
	}
	if err := m.begin(ActionEvaluate); err != nil {
		return "", 0, err
	}
	m.changed()
	return m.lesson.Sentences[m.selected].English, m.selected, nil
}

// CompleteEvaluate stores a pronunciation result if practice is still on
// the same sentence.
func (m *Machine) CompleteEvaluate(index int, result *gateway.Evaluation, err error) {
	m.busy[ActionEvaluate] = false
	defer m.changed()
	if err != nil {
		m.notice = NoticeEvaluateFailed
		return
	}
	m.lastEvaluation = result
	if p, ok := m.state.(*PracticeState); ok && m.selected == index {
		p.Result = result
	}
}

// Notice returns the pending learner-facing notice.
func (m *Machine) Notice() string { return m.notice }

// DismissNotice clears the notice.
func (m *Machine) DismissNotice() {
	if m.notice != "" {
		m.notice = ""
		m.changed()
	}
}
