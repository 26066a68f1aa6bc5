package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/travel-assistant/backend/internal/analysis/directive"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/render"
)

var flagLegacy bool

func newDecodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Extract directives from a reply and print the cleaned text and payloads as JSON",
		Long: `Runs the directive decoder over a saved reply. Reads stdin when no file is given.

Example:
  travelchat decode reply.md
  cat reply.md | travelchat decode --legacy`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDecode,
	}
	cmd.Flags().BoolVar(&flagLegacy, "legacy", false, "decode <TSX type=...> markup")
	return cmd
}

type decodeOutput struct {
	CleanedText string                  `json:"cleanedText"`
	Directives  []directive.Directive   `json:"directives"`
	Routed      map[render.Target][]any `json:"routed"`
	Errors      []string                `json:"errors,omitempty"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	text, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	decoder := directive.Default
	if flagLegacy {
		decoder = directive.Legacy
	}
	res := decoder.Decode(string(text))
	routed := render.NewDispatcher(zerolog.Nop()).Dispatch(context.Background(), res.Directives)

	out := decodeOutput{CleanedText: res.CleanedText, Directives: res.Directives, Routed: routed}
	if out.Directives == nil {
		out.Directives = []directive.Directive{}
	}
	for _, derr := range res.Errors {
		out.Errors = append(out.Errors, derr.Error())
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
