package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"srrt/internal/domain"
	"srrt/internal/transport"
)

// mode [auto|direct|relay]: print or set the mode shared by every process.
func modeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "mode [auto|direct|relay]",
		Short:     "Show or set the shared transport mode",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(domain.ModeAuto), string(domain.ModeDirect), string(domain.ModeRelay)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := appCtx.Modes.SetMode(domain.ParseTransportMode(args[0])); err != nil {
					return err
				}
			}
			m, err := appCtx.Modes.Mode()
			if err != nil {
				return err
			}
			healthy := false
			if appCtx.Poller != nil {
				healthy = appCtx.Poller.Probe(cmd.Context())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\nrelay healthy: %v\nbase: %q\n",
				m, healthy, transport.Base(m, healthy, appCtx.Config.Relay.Prefix))
			return nil
		},
	}
	return cmd
}
