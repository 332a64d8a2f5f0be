package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/client"
	"github.com/windfall/storyspeak/internal/config"
	"github.com/windfall/storyspeak/internal/logger"
)

// New builds a Router with the provider configured for each operation.
// Provider clients are created only when some operation uses them.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Router, error) {
	var (
		gemini *GeminiProvider
		oai    *OpenAIProvider
		azure  *AzureEvaluator
		mock   = NewMock()
	)

	if cfg.UsesProvider(config.ProviderGemini) {
		gc, err := client.NewGeminiClient(ctx, client.GeminiConfig{
			APIKey:             cfg.GeminiAPIKey,
			ProjectID:          cfg.GCPProjectID,
			Location:           cfg.GCPLocation,
			ServiceAccountPath: cfg.GeminiSAPath,
		})
		if err != nil {
			return nil, err
		}
		gemini = NewGeminiProvider(gc, GeminiConfig{
			TextModel:   cfg.GeminiTextModel,
			SpeechModel: cfg.GeminiSpeechModel,
			Voice:       cfg.GeminiVoice,
		})
	}

	if cfg.UsesProvider(config.ProviderOpenAI) {
		var oc *client.OpenAIClient
		switch {
		case cfg.AzureOpenAIEndpoint != "":
			if cfg.AzureOpenAIKey == "" {
				return nil, fmt.Errorf("AZURE_OPENAI_ENDPOINT requires AZURE_OPENAI_KEY")
			}
			oc = client.NewAzureOpenAIClient(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIKey)
		case cfg.OpenAIAPIKey != "":
			oc = client.NewOpenAIClient(cfg.OpenAIAPIKey)
		default:
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		oc.WithModel(cfg.OpenAIChatModel).WithSpeech(cfg.OpenAISpeechModel, cfg.OpenAIVoice)
		oai = NewOpenAIProvider(oc)
	}

	if cfg.EvaluateProvider == config.ProviderAzure {
		if cfg.AzureAISpeechKey == "" || cfg.AzureServiceRegion == "" {
			return nil, fmt.Errorf("azure provider requires AZURE_AI_SPEECH_KEY and AZURE_SERVICE_REGION")
		}
		azure = NewAzureEvaluator(client.NewAzureSpeechClient(cfg.AzureAISpeechKey, cfg.AzureServiceRegion))
	}

	pick := func(name string) any {
		switch name {
		case config.ProviderGemini:
			return gemini
		case config.ProviderOpenAI:
			return oai
		case config.ProviderAzure:
			return azure
		default:
			return mock
		}
	}

	lessons, ok := pick(cfg.LessonProvider).(LessonGenerator)
	if !ok {
		return nil, fmt.Errorf("LESSON_PROVIDER %q cannot generate lessons", cfg.LessonProvider)
	}
	speech, ok := pick(cfg.SpeechProvider).(SpeechSynthesizer)
	if !ok {
		return nil, fmt.Errorf("SPEECH_PROVIDER %q cannot synthesize speech", cfg.SpeechProvider)
	}
	transcriber, ok := pick(cfg.TranscribeProvider).(Transcriber)
	if !ok {
		return nil, fmt.Errorf("TRANSCRIBE_PROVIDER %q cannot transcribe", cfg.TranscribeProvider)
	}
	evaluator, ok := pick(cfg.EvaluateProvider).(Evaluator)
	if !ok {
		return nil, fmt.Errorf("EVALUATE_PROVIDER %q cannot evaluate", cfg.EvaluateProvider)
	}
	partner, ok := pick(cfg.PartnerProvider).(Partner)
	if !ok {
		return nil, fmt.Errorf("PARTNER_PROVIDER %q cannot act as partner", cfg.PartnerProvider)
	}

	log.Info().
		Str("lesson", cfg.LessonProvider).
		Str("speech", cfg.SpeechProvider).
		Str("transcribe", cfg.TranscribeProvider).
		Str("evaluate", cfg.EvaluateProvider).
		Str("partner", cfg.PartnerProvider).
		Msg("AI gateway configured")

	return NewRouter(lessons, speech, transcriber, evaluator, partner, logger.Component(log, "gateway")), nil
}
