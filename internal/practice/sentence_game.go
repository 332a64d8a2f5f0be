package practice

import (
	"fmt"
	"strings"

	apperrors "github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/lesson"
)

// Feedback messages shown after a sentence-game check.
const (
	MessageCorrect  = "Correct! Great job."
	MessageGameOver = "Game Over! You finished all sentences."
)

var (
	ErrGameFinished    = apperrors.Conflict("game already finished")
	ErrAlreadyChecked  = apperrors.Conflict("answers already checked")
	ErrNotChecked      = apperrors.Conflict("answers not checked yet")
	ErrAnswerLocked    = apperrors.Conflict("answer already selected")
	ErrEmptyAnswer     = apperrors.Validation("every blank needs an answer")
	ErrNoVocabulary    = apperrors.Validation("lesson has no vocabulary")
	ErrInvalidBlankNum = apperrors.Validation("invalid blank count")
)

// Feedback is the result of checking a sentence-game round.
type Feedback struct {
	IsCorrect bool   `json:"isCorrect"`
	Message   string `json:"message"`
}

// SentenceGame is the round state of the fill-in-the-blank game. The score
// persists across sentences; everything else resets per sentence.
type SentenceGame struct {
	lesson *lesson.Lesson
	rng    Rand

	BlankCount int       `json:"blankCount"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Blanks     []int     `json:"blanks"`
	Answers    []string  `json:"answers"`
	Tokens     []Token   `json:"tokens"`
	Korean     string    `json:"korean"`
	Score      int       `json:"score"`
	Feedback   *Feedback `json:"feedback,omitempty"`
	Finished   bool      `json:"finished"`
}

// NewSentenceGame starts a game over l with blankCount blanks per sentence
// and prepares the first round.
func NewSentenceGame(l *lesson.Lesson, blankCount int, rng Rand) (*SentenceGame, error) {
	if blankCount < 1 {
		return nil, ErrInvalidBlankNum
	}
	g := &SentenceGame{
		lesson:     l,
		rng:        rng,
		BlankCount: blankCount,
		Total:      len(l.Sentences),
	}
	g.prepare(0)
	return g, nil
}

func (g *SentenceGame) prepare(index int) {
	g.Index = index
	g.Feedback = nil
	if index >= len(g.lesson.Sentences) {
		g.Finished = true
		g.Blanks, g.Answers, g.Tokens, g.Korean = []int{}, []string{}, []Token{}, ""
		return
	}
	s := g.lesson.Sentences[index]
	g.Blanks = SelectBlanks(s, g.BlankCount, g.rng)
	g.Answers = make([]string, len(g.Blanks))
	g.Tokens = Mask(s, g.Blanks)
	g.Korean = s.Korean
}

// SetAnswers replaces the typed answers. The length must match the blanks.
func (g *SentenceGame) SetAnswers(answers []string) error {
	if g.Finished {
		return ErrGameFinished
	}
	if g.Feedback != nil {
		return ErrAlreadyChecked
	}
	if len(answers) != len(g.Blanks) {
		return apperrors.Validation(fmt.Sprintf("expected %d answers, got %d", len(g.Blanks), len(answers)))
	}
	copy(g.Answers, answers)
	return nil
}

// Check scores the current round. Every blank must be filled in.
func (g *SentenceGame) Check() (*Feedback, error) {
	if g.Finished {
		return nil, ErrGameFinished
	}
	if g.Feedback != nil {
		return nil, ErrAlreadyChecked
	}
	for _, a := range g.Answers {
		if strings.TrimSpace(a) == "" {
			return nil, ErrEmptyAnswer
		}
	}

	ok, expected := CheckAnswers(g.lesson.Sentences[g.Index], g.Blanks, g.Answers)
	if ok {
		g.Score++
		g.Feedback = &Feedback{IsCorrect: true, Message: MessageCorrect}
	} else {
		g.Feedback = &Feedback{IsCorrect: false, Message: "Incorrect. Answers: " + strings.Join(expected, ", ")}
	}
	return g.Feedback, nil
}

// Next moves to the next sentence after a check, or finishes the game after
// the last one.
func (g *SentenceGame) Next() error {
	if g.Finished {
		return ErrGameFinished
	}
	if g.Feedback == nil {
		return ErrNotChecked
	}
	g.prepare(g.Index + 1)
	if g.Finished {
		g.Feedback = &Feedback{IsCorrect: true, Message: MessageGameOver}
	}
	return nil
}

// Clone returns a copy that shares the immutable lesson.
func (g *SentenceGame) Clone() *SentenceGame {
	if g == nil {
		return nil
	}
	c := *g
	c.Blanks = append([]int(nil), g.Blanks...)
	c.Answers = append([]string(nil), g.Answers...)
	c.Tokens = append([]Token(nil), g.Tokens...)
	if g.Feedback != nil {
		f := *g.Feedback
		c.Feedback = &f
	}
	return &c
}
