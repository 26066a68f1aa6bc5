package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/travel-assistant/backend/internal/service/stream"
)

func newSessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Create an upstream session and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			transport, p, err := buildTransport(cmd.Context(), cfg, cliLogger())
			if err != nil {
				return err
			}
			creator, ok := transport.(stream.SessionCreator)
			if !ok {
				return fmt.Errorf("transport %s does not keep upstream sessions", transport.Name())
			}

			appName := p.AppName
			if appName == "" {
				appName = cfg.Upstream.AppName
			}
			id, err := creator.CreateSession(cmd.Context(), appName, cfg.Upstream.UserID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
