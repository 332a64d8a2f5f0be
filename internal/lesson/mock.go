package lesson

// MockLesson returns the canned lesson served by the mock provider.
func MockLesson() *Lesson {
	return &Lesson{
		Title: "A Day at the Park (Mock)",
		Sentences: []Sentence{
			{
				English: "The sun is shining brightly today.",
				Korean:  "오늘은 해가 밝게 빛나고 있습니다.",
				Grammar: "Present continuous tense for current action.",
				Vocabulary: []Vocabulary{
					{Word: "shining", Meaning: "빛나는"},
					{Word: "brightly", Meaning: "밝게"},
				},
			},
			{
				English: "Children are playing on the swings.",
				Korean:  "아이들이 그네를 타고 놀고 있습니다.",
				Grammar: "Plural subject 'Children' with 'are'.",
				Vocabulary: []Vocabulary{
					{Word: "children", Meaning: "아이들"},
					{Word: "swings", Meaning: "그네"},
				},
			},
		},
	}
}
