package session

import (
	"slices"

	"github.com/windfall/storyspeak/internal/gateway"
	"github.com/windfall/storyspeak/internal/lesson"
	"github.com/windfall/storyspeak/internal/practice"
)

// Snapshot is an immutable, serializable view of a machine.
type Snapshot struct {
	Step             Step           `json:"step"`
	Version          uint64         `json:"version"`
	Story            string         `json:"story"`
	Level            lesson.Level   `json:"level"`
	Lesson           *lesson.Lesson `json:"lesson,omitempty"`
	SelectedSentence int            `json:"selectedSentence"`
	Busy             []Action       `json:"busy"`
	Capture          CaptureKind    `json:"capture,omitempty"`
	Notice           string         `json:"notice,omitempty"`

	Practice     *PracticeView          `json:"practice,omitempty"`
	SentenceGame *practice.SentenceGame `json:"sentenceGame,omitempty"`
	WordGame     *practice.WordGame     `json:"wordGame,omitempty"`
	Roleplay     *RoleplayView          `json:"roleplay,omitempty"`

	LastEvaluation   *gateway.Evaluation `json:"lastEvaluation,omitempty"`
	LastSentenceGame *GameResult         `json:"lastSentenceGame,omitempty"`
	LastWordGame     *GameResult         `json:"lastWordGame,omitempty"`
}

// PracticeView is the serializable practice screen.
type PracticeView struct {
	Result *gateway.Evaluation `json:"result,omitempty"`
}

// RoleplayView is the serializable roleplay screen.
type RoleplayView struct {
	Connecting bool      `json:"connecting"`
	MicOn      bool      `json:"micOn"`
	Messages   []Message `json:"messages"`
}

// Snapshot copies the machine state.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Step:             m.Step(),
		Version:          m.version,
		Story:            m.story,
		Level:            m.level,
		Lesson:           m.lesson.Clone(),
		SelectedSentence: m.selected,
		Busy:             []Action{},
		Capture:          m.capture,
		Notice:           m.notice,
		LastEvaluation:   copyPtr(m.lastEvaluation),
		LastSentenceGame: copyPtr(m.lastSentenceGame),
		LastWordGame:     copyPtr(m.lastWordGame),
	}
	for _, a := range []Action{ActionGenerate, ActionTranscribe, ActionEvaluate} {
		if m.busy[a] {
			snap.Busy = append(snap.Busy, a)
		}
	}

	switch s := m.state.(type) {
	case *PracticeState:
		snap.Practice = &PracticeView{Result: copyPtr(s.Result)}
	case *SentenceGameState:
		snap.SentenceGame = s.Game.Clone()
	case *WordGameState:
		snap.WordGame = s.Game.Clone()
	case *RoleplayState:
		snap.Roleplay = &RoleplayView{
			Connecting: s.Connecting,
			MicOn:      s.MicOn,
			Messages:   slices.Clone(s.Messages),
		}
	}
	return snap
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
