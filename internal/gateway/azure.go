package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/windfall/storyspeak/internal/audio"
	"github.com/windfall/storyspeak/internal/client"
	apperrors "github.com/windfall/storyspeak/internal/errors"
)

// weakWordThreshold is the accuracy below which a word is called out in
// the feedback.
const weakWordThreshold = 60

// assessor is the part of client.AzureSpeechClient the evaluator uses.
type assessor interface {
	AssessPronunciation(ctx context.Context, audio []byte, contentType, referenceText string) (*client.PronunciationAssessment, error)
}

// AzureEvaluator implements Evaluator with Azure pronunciation assessment.
type AzureEvaluator struct {
	api assessor
}

// NewAzureEvaluator creates an evaluator over api.
func NewAzureEvaluator(api assessor) *AzureEvaluator {
	return &AzureEvaluator{api: api}
}

// azureContentType maps a recording MIME type to the Content-Type the
// short-audio API accepts.
func azureContentType(mimeType string) (string, error) {
	switch audio.BaseType(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "audio/wav; codecs=audio/pcm; samplerate=16000", nil
	case "audio/ogg":
		return "audio/ogg; codecs=opus", nil
	default:
		return "", apperrors.Validation(fmt.Sprintf("azure pronunciation assessment does not accept %q", mimeType))
	}
}

func (e *AzureEvaluator) EvaluatePronunciation(ctx context.Context, reference string, a Audio) (*Evaluation, error) {
	contentType, err := azureContentType(a.MIMEType)
	if err != nil {
		return nil, err
	}
	res, err := e.api.AssessPronunciation(ctx, a.Data, contentType, reference)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Score: ClampScore(res.PronScore), Feedback: azureFeedback(res)}, nil
}

func azureFeedback(res *client.PronunciationAssessment) string {
	var weak []string
	for _, w := range res.Words {
		if w.ErrorType == "Omission" || w.AccuracyScore < weakWordThreshold {
			weak = append(weak, w.Word)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "정확도 %.0f, 유창성 %.0f, 완성도 %.0f.", res.AccuracyScore, res.FluencyScore, res.CompletenessScore)
	if len(weak) == 0 {
		b.WriteString(" 전반적으로 훌륭합니다!")
	} else {
		fmt.Fprintf(&b, " 다음 단어의 발음을 더 연습해 보세요: %s", strings.Join(weak, ", "))
	}
	return b.String()
}
