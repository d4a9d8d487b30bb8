package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wsyeabsera/taskstream/internal/phase"
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Send a single query and print the final answer",
	Long: `Send one query to the pipeline, wait for a terminal state, and print the
final assistant content. Fails when the pipeline pauses for inputs, since
there is no one to prompt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelWarn)

	ctrl, cleanup, err := buildController(cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	defer ctrl.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	query := strings.Join(args, " ")
	if err := ctrl.Send(ctx, query); err != nil {
		return err
	}

	state := ctrl.StateSnapshot()
	if len(state.PendingInputs) > 0 {
		fields := make([]string, 0, len(state.PendingInputs))
		for _, in := range state.PendingInputs {
			fields = append(fields, in.Field)
		}
		return fmt.Errorf("pipeline paused for inputs (%s); use 'taskstream chat' to provide them", strings.Join(fields, ", "))
	}

	live := ctrl.Transcript().Live()
	if live != nil {
		fmt.Fprintln(cmd.OutOrStdout(), live.Content)
	}

	if state.Phase == phase.Failed {
		return fmt.Errorf("execution failed")
	}
	return nil
}
