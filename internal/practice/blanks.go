package practice

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/windfall/storyspeak/internal/lesson"
)

// minCandidateLength is the stripped length a non-vocabulary token must
// exceed to become a blank candidate.
const minCandidateLength = 2

type candidate struct {
	index   int
	length  int
	isVocab bool
}

// SelectBlanks chooses which word positions of the sentence become blanks.
// The result is ascending, unique, and has min(count, wordCount) entries.
//
// Vocabulary words rank first, then longer words. When the ranked
// candidates run out, the remainder is drawn uniformly from the unselected
// positions.
func SelectBlanks(s lesson.Sentence, count int, rng Rand) []int {
	words := s.Words()
	if count <= 0 || len(words) == 0 {
		return []int{}
	}

	vocab := make(map[string]struct{}, len(s.Vocabulary))
	for _, v := range s.Vocabulary {
		if w := strings.ToLower(lesson.Strip(v.Word)); w != "" {
			vocab[w] = struct{}{}
		}
	}

	var candidates []candidate
	for i, w := range words {
		stripped := lesson.Strip(w)
		_, isVocab := vocab[strings.ToLower(stripped)]
		n := utf8.RuneCountInString(stripped)
		if n > minCandidateLength || isVocab {
			candidates = append(candidates, candidate{index: i, length: n, isVocab: isVocab})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].isVocab != candidates[b].isVocab {
			return candidates[a].isVocab
		}
		return candidates[a].length > candidates[b].length
	})

	selected := make([]int, 0, min(count, len(words)))
	for _, c := range candidates {
		if len(selected) == count {
			break
		}
		selected = append(selected, c.index)
	}

	if len(selected) < count {
		// Empty tokens from repeated spaces are only drawn once every
		// real word is taken.
		var remaining, empty []int
		for i, w := range words {
			if slices.Contains(selected, i) {
				continue
			}
			if w == "" {
				empty = append(empty, i)
			} else {
				remaining = append(remaining, i)
			}
		}
		selected = drawInto(selected, remaining, count, rng)
		selected = drawInto(selected, empty, count, rng)
	}

	slices.Sort(selected)
	return selected
}

func drawInto(selected, pool []int, count int, rng Rand) []int {
	for len(selected) < count && len(pool) > 0 {
		k := rng.IntN(len(pool))
		selected = append(selected, pool[k])
		pool = slices.Delete(pool, k, k+1)
	}
	return selected
}

// CheckAnswers compares answers against the stripped tokens at blanks.
// It returns whether every answer matches and the expected words in blank
// order. A missing answer is wrong.
func CheckAnswers(s lesson.Sentence, blanks []int, answers []string) (bool, []string) {
	words := s.Words()
	expected := make([]string, len(blanks))
	correct := true
	for i, idx := range blanks {
		if idx < 0 || idx >= len(words) {
			correct = false
			continue
		}
		expected[i] = lesson.Strip(words[idx])
		if i >= len(answers) || lesson.NormalizeAnswer(answers[i]) != strings.ToLower(expected[i]) {
			correct = false
		}
	}
	return correct, expected
}

// Token is one word of a sentence as shown in the sentence game.
type Token struct {
	Text        string `json:"text"`
	Punctuation string `json:"punctuation,omitempty"`
	Blank       bool   `json:"blank"`
	BlankIndex  int    `json:"blankIndex,omitempty"`
}

// Mask renders the sentence with blanked words hidden. Trailing punctuation
// of a blank stays visible.
func Mask(s lesson.Sentence, blanks []int) []Token {
	words := s.Words()
	tokens := make([]Token, len(words))
	for i, w := range words {
		if k := slices.Index(blanks, i); k >= 0 {
			tokens[i] = Token{Punctuation: lesson.Punctuation(w), Blank: true, BlankIndex: k}
			continue
		}
		tokens[i] = Token{Text: w}
	}
	return tokens
}
