package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"srrt/internal/delivery"
	"srrt/internal/domain"
)

// watch: subscribe and print every flushed event until interrupted.
func watchCmd() *cobra.Command {
	var showStatus bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to the topic and print events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			enc := json.NewEncoder(cmd.OutOrStdout())
			s, err := appCtx.NewSession(delivery.ConsumerFunc(func(batch []domain.Event) {
				mu.Lock()
				defer mu.Unlock()
				for _, ev := range batch {
					_ = enc.Encode(eventLine(ev))
				}
			}))
			if err != nil {
				return err
			}
			defer s.Close()

			if showStatus {
				s.Watch(func(st domain.ConnStatus) {
					mu.Lock()
					defer mu.Unlock()
					fmt.Fprintf(cmd.ErrOrStderr(), "status: %s base=%q err=%q\n", st.State, st.Base, st.LastError)
				})
			}
			s.Start()
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s as %s\n", appCtx.Config.Session.Topic, s.ConnID())

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&showStatus, "status", true, "print connection status changes to stderr")
	return cmd
}

// eventLine is the printed form of an event.
func eventLine(ev domain.Event) map[string]any {
	out := map[string]any{
		"kind": ev.Kind.String(),
		"type": ev.Type,
	}
	if ev.ID != "" {
		out["id"] = ev.ID
	}
	if ev.TS != 0 {
		out["ts"] = ev.TS
	}
	if ev.Capsule != nil {
		out["capsule"] = ev.Capsule
	}
	if ev.Meta != nil {
		out["meta"] = ev.Meta
	}
	if ev.Lock != nil {
		out["lock"] = ev.Lock
	}
	if ev.DecryptErr != nil {
		out["decrypt_error"] = ev.DecryptErr.Error()
	}
	return out
}
