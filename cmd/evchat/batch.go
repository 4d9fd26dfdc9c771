package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/turngraph/pkg/evchat"
)

// batchLine is one NDJSON output record.
type batchLine struct {
	Question     string `json:"question"`
	ThreadID     string `json:"thread_id,omitempty"`
	Answer       string `json:"answer,omitempty"`
	TerminalNode string `json:"terminal_node,omitempty"`
	Error        string `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer a file of questions concurrently",
	Long: `Reads one question per line ("-" for stdin; blank lines and lines starting
with # are skipped) and writes one JSON object per answer, in input order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		questions, err := readQuestions(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

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
		reqs := make([]evchat.AskRequest, len(questions))
		for i, q := range questions {
			reqs[i] = evchat.AskRequest{Question: q, Model: model}
		}

		results, err := rt.Service.AskBatch(cmd.Context(), reqs)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		failed := 0
		for _, res := range results {
			line := batchLine{Question: res.Request.Question}
			if res.Result != nil {
				line.ThreadID = res.Result.ThreadID
				line.TerminalNode = res.Result.TerminalNode
			}
			if res.Err != nil {
				failed++
				line.Error = evchat.FailureMessage(res.Err)
			} else {
				line.Answer = res.Result.Answer
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d questions failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringP("model", "m", "", "Model to answer with (default llm.model)")
}

func readQuestions(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var questions []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return questions, nil
}
