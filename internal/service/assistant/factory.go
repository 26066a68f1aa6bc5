package assistant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/config"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/ai"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream/adk"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream/workflow"
)

// NewTransportFactory selects the transport named by upstream.Transport. The client's API_URL and
// API_KEY take precedence over the server-wide upstream values. The server key is only sent to
// the server's own upstream URL.
func NewTransportFactory(upstream config.UpstreamConfig, aiCfg config.AIConfig, client *http.Client, logger zerolog.Logger) TransportFactory {
	if client == nil {
		client = &http.Client{}
	}

	return func(ctx context.Context, cfg settings.AppConfig, p profile.Profile) (stream.Transport, error) {
		baseURL := cfg.APIURL
		if baseURL == "" {
			baseURL = upstream.BaseURL
		}
		apiKey := cfg.APIKey
		if apiKey == "" && baseURL == upstream.BaseURL {
			apiKey = upstream.APIKey
		}

		switch upstream.Transport {
		case config.TransportADK:
			return adk.New(baseURL, client), nil
		case config.TransportWorkflow:
			return workflow.New(baseURL, apiKey, client), nil
		case config.TransportArk:
			chatModel, err := aiCfg.NewChatModel(ctx)
			if err != nil {
				return nil, err
			}
			transport, err := ai.NewTransport(ctx, chatModel, ai.BuildSystemPrompt(p), aiCfg.HistoryLimit, logger)
			if err != nil {
				return nil, err
			}
			return transport, nil
		default:
			return nil, fmt.Errorf("unknown transport %q", upstream.Transport)
		}
	}
}
