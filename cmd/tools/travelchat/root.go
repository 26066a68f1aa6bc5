package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/travel-assistant/backend/internal/config"
)

var (
	flagTransport string
	flagURL       string
	flagKey       string
	flagSession   string
	flagMode      string
	flagProfile   string
	flagTimeout   time.Duration
	flagPlain     bool
	flagVerbose   bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "travelchat",
		Short:         "Chat with the travel assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagTransport, "transport", "", "upstream transport: adk, workflow or ark (default from UPSTREAM_TRANSPORT)")
	pf.StringVar(&flagURL, "url", "", "upstream base URL (default from UPSTREAM_URL)")
	pf.StringVar(&flagKey, "key", "", "upstream API key (default from UPSTREAM_API_KEY)")
	pf.StringVar(&flagProfile, "profile", "", "agent profile id")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log stream lifecycle to stderr")

	root.AddCommand(newAskCommand(), newSessionCommand(), newDecodeCommand())
	return root
}

// loadConfig reads the environment and applies the command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagTransport != "" {
		cfg.Upstream.Transport = flagTransport
	}
	if flagURL != "" {
		cfg.Upstream.BaseURL = flagURL
	}
	if flagKey != "" {
		cfg.Upstream.APIKey = flagKey
	}
	return cfg, nil
}
