// Package session implements the screen state machine that sequences a
// learner's journey through a lesson.
package session

import (
	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/internal/practice"
)

// Step names one of the six screens.
type Step string

const (
	StepInput        Step = "INPUT"
	StepLesson       Step = "LESSON"
	StepPractice     Step = "PRACTICE"
	StepRoleplay     Step = "ROLEPLAY"
	StepSentenceGame Step = "SENTENCE_GAME"
	StepWordGame     Step = "WORD_GAME"
)

// Action is a class of gateway call guarded by a busy flag.
type Action string

const (
	ActionGenerate   Action = "generate"
	ActionTranscribe Action = "transcribe"
	ActionEvaluate   Action = "evaluate"
)

// CaptureKind says what an audio capture is for.
type CaptureKind string

const (
	CaptureInput    CaptureKind = "input"
	CapturePractice CaptureKind = "practice"
	CaptureRoleplay CaptureKind = "roleplay"
)

// step returns the screen a capture kind belongs to.
func (k CaptureKind) step() (Step, bool) {
	switch k {
	case CaptureInput:
		return StepInput, true
	case CapturePractice:
		return StepPractice, true
	case CaptureRoleplay:
		return StepRoleplay, true
	}
	return "", false
}

// Role identifies the speaker of a roleplay message.
type Role string

const (
	RoleAI   Role = "ai"
	RoleUser Role = "user"
)

// Message is one line of the roleplay conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// State is the per-screen part of the machine. Exactly one is active.
type State interface {
	Step() Step
}

// InputState is the story entry screen.
type InputState struct{}

// LessonState is the lesson overview screen.
type LessonState struct{}

// PracticeState is the pronunciation practice screen.
type PracticeState struct {
	Result *gateway.Evaluation
}

// SentenceGameState wraps the fill-in-the-blank round state.
type SentenceGameState struct {
	Game *practice.SentenceGame
}

// WordGameState wraps the flashcard round state.
type WordGameState struct {
	Game *practice.WordGame
}

// RoleplayState is the conversation with the AI partner. Epoch changes
// every time the screen is entered so late replies from an earlier visit
// are dropped.
type RoleplayState struct {
	Epoch      int
	Connecting bool
	MicOn      bool
	Messages   []Message
}

func (InputState) Step() Step        { return StepInput }
func (LessonState) Step() Step       { return StepLesson }
func (PracticeState) Step() Step     { return StepPractice }
func (SentenceGameState) Step() Step { return StepSentenceGame }
func (WordGameState) Step() Step     { return StepWordGame }
func (RoleplayState) Step() Step     { return StepRoleplay }

// GameResult is the final score of a finished or abandoned game.
type GameResult struct {
	Score int `json:"score"`
	Total int `json:"total"`
}
