package practice

import "github.com/windfall/storyspeak/internal/lesson"

// maxOptions is the number of choices shown per word-game card.
const maxOptions = 4

// SelectOptions builds the multiple-choice meanings for pool[target]: up to
// three distractors plus the correct meaning, shuffled.
//
// With allowDuplicates false the distractors are drawn from the distinct
// meanings other than the target's, so the correct meaning appears exactly
// once. With allowDuplicates true every other pool entry contributes its
// meaning by position, and a word sharing the target's meaning can show the
// same string twice.
func SelectOptions(pool []lesson.Vocabulary, target int, rng Rand, allowDuplicates bool) []string {
	if target < 0 || target >= len(pool) {
		return nil
	}
	correct := pool[target].Meaning

	var distractors []string
	if allowDuplicates {
		for i, v := range pool {
			if i != target {
				distractors = append(distractors, v.Meaning)
			}
		}
	} else {
		seen := map[string]struct{}{correct: {}}
		for _, v := range pool {
			if _, ok := seen[v.Meaning]; ok {
				continue
			}
			seen[v.Meaning] = struct{}{}
			distractors = append(distractors, v.Meaning)
		}
	}

	rng.Shuffle(len(distractors), func(i, j int) {
		distractors[i], distractors[j] = distractors[j], distractors[i]
	})
	if len(distractors) > maxOptions-1 {
		distractors = distractors[:maxOptions-1]
	}

	options := append(distractors, correct)
	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}
