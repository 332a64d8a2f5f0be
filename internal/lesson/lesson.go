// Package lesson holds the lesson content model produced by AI generation
// and the tokenization rules shared by the practice games.
package lesson

import (
	"fmt"
	"strings"
)

// Level is the learner's proficiency level.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// ParseLevel parses a level name. An empty string yields LevelBeginner.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "":
		return LevelBeginner, nil
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return Level(s), nil
	default:
		return "", fmt.Errorf("unknown level %q", s)
	}
}

// Vocabulary is a single word and its Korean meaning.
type Vocabulary struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
}

// Sentence is one lesson sentence with its translation and notes.
type Sentence struct {
	English    string       `json:"english"`
	Korean     string       `json:"korean"`
	Grammar    string       `json:"grammar"`
	Vocabulary []Vocabulary `json:"vocabulary"`
}

// Lesson is the AI-generated unit of study. A lesson is never mutated after
// it is produced; a new generation replaces it.
type Lesson struct {
	Title     string     `json:"title"`
	Sentences []Sentence `json:"sentences"`
}

// Words returns the tokens of the sentence split on single spaces,
// punctuation included. Runs of spaces yield empty tokens so that indices
// line up with a plain split on the client. An empty sentence has no words.
func (s Sentence) Words() []string {
	if s.English == "" {
		return nil
	}
	return strings.Split(s.English, " ")
}

// FlattenVocabulary returns every vocabulary item of the lesson in sentence
// order.
func (l *Lesson) FlattenVocabulary() []Vocabulary {
	if l == nil {
		return nil
	}
	var pool []Vocabulary
	for _, s := range l.Sentences {
		pool = append(pool, s.Vocabulary...)
	}
	return pool
}

// VocabularyCount returns the total number of vocabulary items.
func (l *Lesson) VocabularyCount() int {
	if l == nil {
		return 0
	}
	n := 0
	for _, s := range l.Sentences {
		n += len(s.Vocabulary)
	}
	return n
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (l *Lesson) Clone() *Lesson {
	if l == nil {
		return nil
	}
	out := &Lesson{Title: l.Title, Sentences: make([]Sentence, len(l.Sentences))}
	for i, s := range l.Sentences {
		s.Vocabulary = append([]Vocabulary(nil), s.Vocabulary...)
		out.Sentences[i] = s
	}
	return out
}

// Normalize replaces nil slices with empty ones so the lesson serializes
// with arrays instead of nulls.
func (l *Lesson) Normalize() {
	if l.Sentences == nil {
		l.Sentences = []Sentence{}
	}
	for i := range l.Sentences {
		if l.Sentences[i].Vocabulary == nil {
			l.Sentences[i].Vocabulary = []Vocabulary{}
		}
	}
}
