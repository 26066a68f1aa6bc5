package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/config"
	"github.com/zhouzirui/travel-assistant/backend/internal/logging"
	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
)

// errStopped marks a reply cut short by Ctrl-C or --timeout.
var errStopped = errors.New("stopped")

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [text...]",
		Short: "Send one prompt and stream the reply",
		Long: `Streams the reply as it arrives, then re-renders the cleaned answer as markdown and
summarises any charts and map markers it contained. Ctrl-C stops generation.

Example:
  travelchat ask 帮我规划杭州三日游
  travelchat ask --transport workflow --mode knowledge "Budget for Chengdu?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	cmd.Flags().StringVar(&flagSession, "session", "", "upstream session id (created when the transport needs one)")
	cmd.Flags().StringVar(&flagMode, "mode", "", "answer mode passed to the upstream")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "give up after this long")
	cmd.Flags().BoolVar(&flagPlain, "plain", false, "print the final answer without markdown rendering")
	return cmd
}

func cliLogger() zerolog.Logger {
	if !flagVerbose {
		return zerolog.Nop()
	}
	return logging.New("development", "debug").Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func buildTransport(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (stream.Transport, profile.Profile, error) {
	p, ok := profile.NewMemoryStore(profile.Seed()).FindByID(flagProfile)
	if !ok {
		return nil, profile.Profile{}, fmt.Errorf("unknown profile %q", flagProfile)
	}
	factory := assistant.NewTransportFactory(cfg.Upstream, cfg.AI, &http.Client{}, logger)
	transport, err := factory(ctx, settings.AppConfig{APIURL: cfg.Upstream.BaseURL, APIKey: cfg.Upstream.APIKey}, p)
	return transport, p, err
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cliLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()

	transport, p, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}

	appName := p.AppName
	if appName == "" {
		appName = cfg.Upstream.AppName
	}
	sessionID := flagSession
	if creator, ok := transport.(stream.SessionCreator); ok && sessionID == "" {
		if sessionID, err = creator.CreateSession(ctx, appName, cfg.Upstream.UserID); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("session "+sessionID))
	}

	req := stream.Request{
		Text:      strings.Join(args, " "),
		SessionID: sessionID,
		UserID:    cfg.Upstream.UserID,
		AppName:   appName,
		Streaming: true,
		Mode:      flagMode,
	}

	controller := stream.NewController(transport, logger, stream.WithStopTimeout(cfg.Upstream.StopTimeout))
	out := cmd.OutOrStdout()
	answer, err := streamAnswer(ctx, controller, req, out)

	fmt.Fprintln(out)
	fmt.Fprintln(out, dimStyle.Render(strings.Repeat("─", 40)))
	if errors.Is(err, errStopped) {
		// a cut-off reply is never decoded
		printPartial(out, answer)
		return err
	}

	res := directive.Decode(answer)
	routed := render.NewDispatcher(logger).Dispatch(context.Background(), res.Directives)
	printAnswer(out, res, routed, flagPlain)
	return err
}

// streamAnswer prints chunks as they arrive and returns the full reply. Cancelling ctx stops
// the upstream task and returns what was received so far with errStopped, once the stop request
// has settled.
func streamAnswer(ctx context.Context, controller *stream.Controller, req stream.Request, out io.Writer) (string, error) {
	var (
		mu      sync.Mutex
		partial strings.Builder
		full    string
		failure error
	)

	session := controller.Open(context.WithoutCancel(ctx), req, stream.Listener{
		OnChunk: func(text, _ string) {
			mu.Lock()
			partial.WriteString(text)
			mu.Unlock()
			fmt.Fprint(out, text)
		},
		OnComplete: func(text string) {
			mu.Lock()
			full = text
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			failure = err
			mu.Unlock()
		},
	})

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Cancel()
		<-session.Done()
		<-session.StopDone()
		mu.Lock()
		defer mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return partial.String(), fmt.Errorf("%w: timed out after %s", errStopped, flagTimeout)
		}
		return partial.String(), errStopped
	}

	mu.Lock()
	defer mu.Unlock()
	if full == "" {
		full = partial.String()
	}
	return full, failure
}
