package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wsyeabsera/taskstream/internal/protocol"
	"github.com/wsyeabsera/taskstream/internal/session"
	"github.com/wsyeabsera/taskstream/internal/transcript"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive pipeline session",
	Long: `Start an interactive session. Each line you type is sent to the pipeline;
phase transitions stream back into the transcript. When the pipeline pauses
for missing inputs you are prompted for each field.

Commands: /new starts a fresh conversation, /quit exits.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().Bool("verbose", false, "Enable debug logging")
}

func runChat(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	ctrl, cleanup, err := buildController(cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	defer ctrl.Close()

	out := cmd.OutOrStdout()
	formatter := transcript.NewFormatter()
	ctrl.SetEntryHandler(func(e transcript.Entry) {
		// Loading placeholders repaint the same line; print terminal and
		// appended entries only.
		if e.IsLoading {
			return
		}
		if line := formatter.FormatEntry(&e); line != "" {
			fmt.Fprintln(out, line)
		}
	})
	ctrl.SetCompleteHandler(func(executionID string) {
		logger.Info("execution complete", "execution_id", executionID)
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(out, "taskstream chat — /new for a fresh conversation, /quit to exit")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/new":
			ctrl.NewConversation()
			fmt.Fprintln(out, "(started a new conversation)")
			continue
		}

		if err := ctrl.Send(ctx, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		if err := resolveInputsInteractively(ctx, ctrl, scanner, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}

	return scanner.Err()
}

// resolveInputsInteractively prompts for every pending input, submits the
// values, and waits for the poll loop to reconcile. The pipeline may pause
// again mid-poll, so this loops until no inputs remain.
func resolveInputsInteractively(ctx context.Context, ctrl *session.Controller, scanner *bufio.Scanner, out io.Writer) error {
	for {
		state := ctrl.StateSnapshot()
		if len(state.PendingInputs) == 0 {
			return nil
		}

		values := make([]protocol.SubmittedInput, 0, len(state.PendingInputs))
		for _, in := range state.PendingInputs {
			prompt := in.Field
			if in.Description != "" {
				prompt = fmt.Sprintf("%s (%s)", in.Field, in.Description)
			}
			fmt.Fprintf(out, "%s: ", prompt)
			if !scanner.Scan() {
				return fmt.Errorf("input closed while collecting pending fields")
			}
			values = append(values, protocol.SubmittedInput{
				StepID: in.StepID,
				Field:  in.Field,
				Value:  strings.TrimSpace(scanner.Text()),
			})
		}

		if err := ctrl.SubmitInputs(ctx, values); err != nil {
			return err
		}

		if done := ctrl.PollDone(); done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
