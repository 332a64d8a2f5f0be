package practice

import (
	"github.com/windfall/storyspeak/internal/lesson"
)

// Choice records the learner's pick for the current card.
type Choice struct {
	IsCorrect bool   `json:"isCorrect"`
	Selected  string `json:"selected"`
	Correct   string `json:"correct"`
}

// WordGame is the round state of the vocabulary flashcard game.
type WordGame struct {
	rng             Rand
	allowDuplicates bool

	Pool     []lesson.Vocabulary `json:"-"`
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Word     string              `json:"word"`
	Options  []string            `json:"options"`
	Score    int                 `json:"score"`
	Feedback *Choice             `json:"feedback,omitempty"`
	Finished bool                `json:"finished"`
}

// NewWordGame flattens the lesson vocabulary and prepares the first card.
func NewWordGame(l *lesson.Lesson, rng Rand, allowDuplicates bool) (*WordGame, error) {
	pool := l.FlattenVocabulary()
	if len(pool) == 0 {
		return nil, ErrNoVocabulary
	}
	g := &WordGame{
		rng:             rng,
		allowDuplicates: allowDuplicates,
		Pool:            pool,
		Total:           len(pool),
	}
	g.prepare(0)
	return g, nil
}

func (g *WordGame) prepare(index int) {
	g.Index = index
	g.Feedback = nil
	if index >= len(g.Pool) {
		g.Finished = true
		g.Word, g.Options = "", []string{}
		return
	}
	g.Word = g.Pool[index].Word
	g.Options = SelectOptions(g.Pool, index, g.rng, g.allowDuplicates)
}

// Answer scores selected against the current card. The first answer locks
// the card.
func (g *WordGame) Answer(selected string) (*Choice, error) {
	if g.Finished {
		return nil, ErrGameFinished
	}
	if g.Feedback != nil {
		return nil, ErrAnswerLocked
	}
	correct := g.Pool[g.Index].Meaning
	g.Feedback = &Choice{IsCorrect: selected == correct, Selected: selected, Correct: correct}
	if g.Feedback.IsCorrect {
		g.Score++
	}
	return g.Feedback, nil
}

// Advance moves past an answered card. It reports false when there is
// nothing to advance.
func (g *WordGame) Advance() bool {
	if g.Finished || g.Feedback == nil {
		return false
	}
	g.prepare(g.Index + 1)
	return true
}

// Clone returns a copy suitable for a snapshot.
func (g *WordGame) Clone() *WordGame {
	if g == nil {
		return nil
	}
	c := *g
	c.Options = append([]string(nil), g.Options...)
	if g.Feedback != nil {
		f := *g.Feedback
		c.Feedback = &f
	}
	return &c
}
