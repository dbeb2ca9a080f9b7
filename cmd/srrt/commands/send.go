package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"srrt/internal/domain"
	"srrt/internal/session"
)

// send <text>: publish a chat message, or encrypted glyphs with --encrypt.
func sendCmd() *cobra.Command {
	var (
		encrypt bool
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Publish a chat message or encrypted glyphs on the topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := appCtx.NewSession(nil)
			if err != nil {
				return err
			}
			defer s.Close()

			opened := make(chan struct{})
			var once sync.Once
			s.Watch(func(st domain.ConnStatus) {
				if st.Open {
					once.Do(func() { close(opened) })
				}
			})
			s.Start()

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			select {
			case <-opened:
			case <-ctx.Done():
				return fmt.Errorf("connection not open after %s: %s", wait, s.Status().LastError)
			}

			out := session.Outbound{
				Capsule: map[string]any{"chat_message": map[string]any{"text": args[0]}},
			}
			if encrypt {
				out = session.Outbound{
					Capsule: map[string]any{"glyphs": []any{args[0]}},
					Encrypt: true,
					Purpose: domain.PurposeGlyph,
				}
			}
			if err := s.Send(ctx, out); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "send the text as encrypted glyphs")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the connection to open")
	return cmd
}
