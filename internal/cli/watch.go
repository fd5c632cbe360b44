package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"trivia-sync-service/internal/client"
	"trivia-sync-service/internal/codegen"
	"trivia-sync-service/internal/config"
	"trivia-sync-service/internal/game"
	"trivia-sync-service/internal/reconcile"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewWatchCmd follows a remote session the way a player's screen would and logs
// every change of the reconciled view.
func NewWatchCmd(opts *rootOptions) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "watch CODE",
		Short: "Follow a live session through broadcast and polling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, serverURL, args[0])
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the trivia server")
	return cmd
}

func runWatch(ctx context.Context, cfg config.Config, serverURL, code string) error {
	code = codegen.Normalize(code)
	api := client.New(serverURL, 5*time.Second)
	if _, err := api.Snapshot(ctx, code); err != nil {
		return err
	}

	session := reconcile.Open(ctx, code, api, client.NewWSSubscriber(serverURL), reconcile.Options{
		PollInterval: config.Duration(cfg.Game.PollInterval, reconcile.DefaultPollInterval),
	})
	defer session.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-session.Updates():
			if !ok {
				return nil
			}
			logView(v)
			if v.Phase() != game.PhaseFinished {
				continue
			}
			standings := v.Standings
			if standings == nil {
				// Finished was seen through polling only.
				remote, err := api.Leaderboard(ctx, code)
				if err != nil {
					return err
				}
				standings = remote
			}
			for _, st := range standings {
				log.Info().Int("rank", st.Rank).Str("nickname", st.Nickname).Int("score", st.Score).Msg("final standing")
			}
			return nil
		}
	}
}

func logView(v reconcile.View) {
	ev := log.Info().
		Str("code", v.Code).
		Str("phase", string(v.Phase())).
		Int("players", len(v.Players))
	if v.Question != nil {
		ev = ev.Int("question", v.CurrentQuestion).
			Str("text", v.Question.Text).
			Int("answered", v.AnsweredCount).
			Dur("remaining", v.Remaining(time.Now()))
		if v.Question.CorrectAnswer != "" {
			ev = ev.Str("correct_answer", v.Question.CorrectAnswer)
		}
	}
	ev.Msg("session updated")
}
