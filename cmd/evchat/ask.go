package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/randalmurphal/turngraph/pkg/evchat"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, logger, err := buildRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				logger.Warn("close resources", "error", err)
			}
		}()

		model, _ := cmd.Flags().GetString("model")
		threadID, _ := cmd.Flags().GetString("thread")
		raw, _ := cmd.Flags().GetBool("raw")

		result, err := rt.Service.Ask(cmd.Context(), evchat.AskRequest{
			Question: strings.Join(args, " "),
			Model:    model,
			ThreadID: threadID,
		})
		if err != nil {
			return errors.New(evchat.FailureMessage(err))
		}

		out := cmd.OutOrStdout()
		if err := printAnswer(out, result.Answer, !raw && isTerminal(out)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "thread %s · %s · %d steps\n", result.ThreadID, result.TerminalNode, result.StepsTaken)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("model", "m", "", "Model to answer with (default llm.model)")
	askCmd.Flags().StringP("thread", "t", "", "Thread id to record the turn under")
	askCmd.Flags().Bool("raw", false, "Print the answer without markdown rendering")
}

// printAnswer writes answer, rendering markdown when pretty is set.
func printAnswer(w io.Writer, answer string, pretty bool) error {
	if pretty {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(terminalWidth()))
		if err == nil {
			if rendered, err := r.Render(answer); err == nil {
				_, err = io.WriteString(w, rendered)
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, answer)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return min(width, 120)
}
