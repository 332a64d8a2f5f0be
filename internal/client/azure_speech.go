package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/windfall/storyspeak/internal/errors"
)

// AzureSpeechClient wraps the Azure AI Speech REST API.
type AzureSpeechClient struct {
	apiKey  string
	region  string
	baseURL string
	client  *http.Client
}

// NewAzureSpeechClient creates a new Azure Speech client.
func NewAzureSpeechClient(apiKey, region string) *AzureSpeechClient {
	return &AzureSpeechClient{
		apiKey: apiKey,
		region: region,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL overrides the regional endpoint.
func (c *AzureSpeechClient) WithBaseURL(baseURL string) *AzureSpeechClient {
	c.baseURL = baseURL
	return c
}

// AssessedWord is one word of a pronunciation assessment.
type AssessedWord struct {
	Word          string  `json:"Word"`
	AccuracyScore float64 `json:"AccuracyScore"`
	ErrorType     string  `json:"ErrorType"`
}

// PronunciationAssessment is the best hypothesis of a detailed recognition
// result with pronunciation scores.
type PronunciationAssessment struct {
	Display           string         `json:"Display"`
	AccuracyScore     float64        `json:"AccuracyScore"`
	FluencyScore      float64        `json:"FluencyScore"`
	CompletenessScore float64        `json:"CompletenessScore"`
	PronScore         float64        `json:"PronScore"`
	Words             []AssessedWord `json:"Words"`
}

type recognitionResult struct {
	RecognitionStatus string                    `json:"RecognitionStatus"`
	NBest             []PronunciationAssessment `json:"NBest"`
}

func (c *AzureSpeechClient) endpoint() string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s.stt.speech.microsoft.com", c.region)
}

// AssessPronunciation sends audio to the short-audio recognition API with
// pronunciation assessment against referenceText. contentType must be one
// the API accepts, such as "audio/wav; codecs=audio/pcm; samplerate=16000"
// or "audio/ogg; codecs=opus".
func (c *AzureSpeechClient) AssessPronunciation(ctx context.Context, audio []byte, contentType, referenceText string) (*PronunciationAssessment, error) {
	if c.apiKey == "" || (c.region == "" && c.baseURL == "") {
		return nil, errors.New(errors.ErrAIService, "Azure Speech credentials not configured")
	}

	u, err := url.Parse(c.endpoint() + "/speech/recognition/conversation/cognitiveservices/v1")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("language", "en-US")
	q.Set("format", "detailed")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	params, err := json.Marshal(map[string]any{
		"ReferenceText": referenceText,
		"GradingSystem": "HundredMark",
		"Granularity":   "Word",
		"Dimension":     "Comprehensive",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(params))
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json;text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure speech api error %d: %s", resp.StatusCode, string(body))
	}

	var result recognitionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.RecognitionStatus != "Success" || len(result.NBest) == 0 {
		return nil, fmt.Errorf("azure speech recognition status %q", result.RecognitionStatus)
	}

	best := result.NBest[0]
	best.Words = DeduplicateWords(best.Words)
	return &best, nil
}

// DeduplicateWords collapses repeated words that Azure reports once as an
// insertion and again with another error type. The insertion entry is kept
// with the average accuracy of the group.
func DeduplicateWords(words []AssessedWord) []AssessedWord {
	groups := make(map[string][]int)
	for i, w := range words {
		groups[w.Word] = append(groups[w.Word], i)
	}

	drop := make(map[int]bool)
	for _, idx := range groups {
		if len(idx) <= 1 {
			continue
		}
		insertion := -1
		var total float64
		for _, i := range idx {
			if words[i].ErrorType == "Insertion" {
				insertion = i
			}
			total += words[i].AccuracyScore
		}
		if insertion == -1 {
			continue
		}
		words[insertion].AccuracyScore = total / float64(len(idx))
		for _, i := range idx {
			if i != insertion {
				drop[i] = true
			}
		}
	}

	if len(drop) == 0 {
		return words
	}
	out := make([]AssessedWord, 0, len(words)-len(drop))
	for i, w := range words {
		if !drop[i] {
			out = append(out, w)
		}
	}
	return out
}
