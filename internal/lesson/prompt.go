package lesson

import (
	"fmt"
	"strings"
)

// GeneratorInstruction is the system instruction for lesson generation.
const GeneratorInstruction = `당신은 전문 영어 회화 강사입니다.
사용자가 제공한 이야기나 상황을 바탕으로 맞춤형 영어 레슨을 생성합니다.

반드시 다음 구조의 JSON 형식으로만 응답하세요:
{
  "title": "이야기에 어울리는 멋진 레슨 제목",
  "sentences": [
    {
      "english": "사용자 수준에 맞는 핵심 영어 문장",
      "korean": "자연스러운 한국어 번역",
      "grammar": "이 문장에 쓰인 핵심 문법 설명 (한국어)",
      "vocabulary": [
        {"word": "단어", "meaning": "뜻"}
      ]
    }
  ]
}
문장은 정확히 5개를 생성하세요. 학습자의 레벨(Beginner, Intermediate, Advanced)을 엄격히 준수하세요.`

// RoleplayInstruction is the system instruction for the conversation partner.
const RoleplayInstruction = `당신은 친절한 원어민 대화 상대입니다.
사용자가 입력한 상황 속의 인물이 되어 대화를 이끌어주세요.
질문을 던져 사용자가 영어를 더 많이 말하도록 유도하고,
사용자가 틀린 문법이나 부자연스러운 표현을 쓰면 대화 흐름을 방해하지 않는 선에서 친절하게 교정해주거나 더 나은 표현을 추천해주세요.
모든 피드백은 한국어로 설명해주되 대화 자체는 영어로 진행합니다.`

// TranscribeInstruction asks for a verbatim transcript.
const TranscribeInstruction = "위 음성 파일의 내용을 텍스트로 그대로 받아적어주세요. 들리는 대로 정확하게 텍스트만 출력하세요. 추가적인 설명은 생략하세요."

// SpeechPrompt wraps text for speech synthesis.
func SpeechPrompt(text string) string {
	return "Speak naturally and clearly: " + text
}

// GeneratorPrompt builds the user prompt for lesson generation.
func GeneratorPrompt(story string, level Level) string {
	return fmt.Sprintf("Level: %s\n\nStory:\n%s", level, strings.TrimSpace(story))
}

// EvaluationPrompt builds the pronunciation evaluation prompt.
func EvaluationPrompt(reference string) string {
	return fmt.Sprintf(`The attached audio is a learner reading this English sentence aloud:
"%s"

Score the pronunciation from 0 to 100 and give short, encouraging feedback in Korean.
Respond only with JSON: {"score": <number>, "feedback": "<text>"}`, reference)
}

// RoleplayContext describes the situation the partner plays in.
func RoleplayContext(story, title string) string {
	var b strings.Builder
	b.WriteString(RoleplayInstruction)
	if title != "" {
		fmt.Fprintf(&b, "\n\nLesson: %s", title)
	}
	if story = strings.TrimSpace(story); story != "" {
		fmt.Fprintf(&b, "\nSituation: %s", story)
	}
	return b.String()
}
