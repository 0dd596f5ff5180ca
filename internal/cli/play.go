package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/client"
	"live-quiz-service/internal/domain"
)

type playOptions struct {
	server   string
	code     string
	nickname string
}

// NewPlayCmd joins a session as a player and reads answers from stdin.
func NewPlayCmd(configPath *string) *cobra.Command {
	opts := playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a live quiz session as a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, *configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "quiz server base URL")
	cmd.Flags().StringVar(&opts.code, "code", "", "session join code")
	cmd.Flags().StringVar(&opts.nickname, "nickname", "", "nickname shown on the leaderboard")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("nickname")
	return cmd
}

func runPlay(cmd *cobra.Command, configPath string, opts playOptions) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	remote := client.New(opts.server, nil)
	player, err := remote.Join(ctx, opts.code, opts.nickname)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	fmt.Fprintf(out, "Joined as %s. Waiting for the host to start.\n", player.Nickname)

	driver := app.NewPlayerDriver(remote, opts.code, player.ID, log)
	var (
		lastIndex = -1
		lastPhase app.Phase
	)
	driver.OnUpdate = func(v *app.PlayerView) {
		if v.Phase == lastPhase && v.Session.CurrentQuestionIndex == lastIndex {
			return
		}
		lastPhase, lastIndex = v.Phase, v.Session.CurrentQuestionIndex
		printPlayerView(out, v)
	}

	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx, cfg.PollInterval()) }()

	lines := readLines(ctx, cmd.InOrStdin())

	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			view := driver.View()
			if !view.CanAnswer() {
				continue
			}
			sub, err := parseAnswer(*view.Question, line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			outcome, err := driver.Answer(ctx, sub)
			if err != nil {
				fmt.Fprintf(out, "answer failed: %v\n", err)
				continue
			}
			if outcome.Accepted {
				fmt.Fprintln(out, "Answer locked in.")
			}
		}
	}
}

// readLines streams lines from r until EOF or until ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// parseAnswer reads a 1-based option number, or a number for estimates.
func parseAnswer(q domain.Question, line string) (domain.Submission, error) {
	line = strings.TrimSpace(line)
	if q.Type == domain.Estimate {
		v, err := decimal.NewFromString(line)
		if err != nil {
			return domain.Submission{}, errors.New("enter a number")
		}
		return domain.Submission{Estimate: &v}, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(q.Options) {
		return domain.Submission{}, fmt.Errorf("enter an option number between 1 and %d", len(q.Options))
	}
	idx := n - 1
	return domain.Submission{AnswerIndex: &idx}, nil
}

func printPlayerView(w io.Writer, v *app.PlayerView) {
	switch v.Phase {
	case app.PhaseAnswering:
		q := v.Question
		if q == nil {
			return
		}
		fmt.Fprintf(w, "\nQuestion %d/%d (%ds): %s\n", v.Session.CurrentQuestionIndex+1, v.QuestionCount, v.TimeLeft, q.Text)
		if q.Type == domain.Estimate && q.Estimate != nil {
			fmt.Fprintf(w, "  estimate between %s and %s\n", q.Estimate.Min, q.Estimate.Max)
			return
		}
		for i, opt := range q.Options {
			fmt.Fprintf(w, "  %d) %s\n", i+1, opt)
		}
	case app.PhaseRevealed:
		if correct, known := v.Correct(); known {
			verdict := "Wrong"
			if correct {
				verdict = "Correct"
			}
			points := 0
			if v.LastPoints != nil {
				points = *v.LastPoints
			}
			fmt.Fprintf(w, "%s! +%d points\n", verdict, points)
		} else if !v.HasAnswered {
			fmt.Fprintln(w, "Time's up, no answer.")
		}
		fmt.Fprintf(w, "Score %d, rank %d\n", v.Score, v.Rank)
	case app.PhaseFinished:
		fmt.Fprintf(w, "\nGame over. Final score %d, rank %d of %d\n", v.Score, v.Rank, len(v.Standings))
	}
}
