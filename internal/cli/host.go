package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/client"
	"live-quiz-service/internal/domain"
)

type hostOptions struct {
	server   string
	hostID   string
	quizFile string
	quizID   string
	code     string
}

// NewHostCmd runs the host sync loop against a running server: it creates the
// session if needed, starts it on Enter and then reveals and advances
// questions automatically.
func NewHostCmd(configPath *string) *cobra.Command {
	opts := hostOptions{}
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a live quiz session from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, *configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "quiz server base URL")
	cmd.Flags().StringVar(&opts.hostID, "host-id", os.Getenv("QUIZ_HOST_ID"), "host identity sent as X-Host-ID")
	cmd.Flags().StringVar(&opts.quizFile, "quiz", "", "YAML quiz file to create and play")
	cmd.Flags().StringVar(&opts.quizID, "quiz-id", "", "existing quiz to play")
	cmd.Flags().StringVar(&opts.code, "code", "", "existing session join code to drive")
	return cmd
}

func runHost(cmd *cobra.Command, configPath string, opts hostOptions) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if opts.hostID == "" {
		return errors.New("--host-id is required")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	remote := client.New(opts.server, nil)

	code := opts.code
	if code == "" {
		quizID := opts.quizID
		if quizID == "" {
			if opts.quizFile == "" {
				return errors.New("one of --code, --quiz-id or --quiz is required")
			}
			draft, err := client.LoadQuizDraft(opts.quizFile)
			if err != nil {
				return err
			}
			quiz, err := remote.CreateQuiz(ctx, opts.hostID, draft)
			if err != nil {
				return fmt.Errorf("create quiz: %w", err)
			}
			quizID = quiz.ID
		}
		session, err := remote.CreateSession(ctx, opts.hostID, quizID)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		code = session.JoinCode
		fmt.Fprintf(out, "Join code: %s\nPress Enter to start once players have joined.\n", code)
		if _, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		session, err = remote.Start(ctx, code, opts.hostID)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		if session.Status == domain.StatusLobby {
			return errors.New("no players joined; session not started")
		}
	}

	driver := app.NewHostDriver(remote, code, opts.hostID, log)
	var (
		lastIndex = -1
		lastPhase app.Phase
	)
	driver.OnUpdate = func(v *app.HostView) {
		if v.Phase == lastPhase && v.Session.CurrentQuestionIndex == lastIndex {
			return
		}
		lastPhase, lastIndex = v.Phase, v.Session.CurrentQuestionIndex
		printHostView(out, v)
	}
	if err := driver.Run(ctx, cfg.PollInterval()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printHostView(w io.Writer, v *app.HostView) {
	switch v.Phase {
	case app.PhaseAnswering:
		if v.Question != nil {
			fmt.Fprintf(w, "\nQuestion %d/%d: %s\n", v.Session.CurrentQuestionIndex+1, v.QuestionCount, v.Question.Text)
		}
	case app.PhaseRevealed:
		fmt.Fprintf(w, "Answers revealed (%d/%d answered)\n", v.AnsweredCount, v.RosterSize)
		printStandings(w, v.Standings)
	case app.PhaseFinished:
		fmt.Fprintln(w, "\nFinal standings:")
		printStandings(w, v.Standings)
	}
}

func printStandings(w io.Writer, standings []app.Standing) {
	for _, st := range standings {
		fmt.Fprintf(w, "  %2d. %-20s %6d  %s\n", st.Rank, st.Player.Nickname, st.Player.Score, movementMark(st.Movement))
	}
}

func movementMark(m app.Movement) string {
	switch m {
	case app.MovedUp:
		return "↑"
	case app.MovedDown:
		return "↓"
	default:
		return ""
	}
}
