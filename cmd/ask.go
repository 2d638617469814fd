package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/app"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/orchestrator"
	"github.com/ragline/ragline/internal/session"
)

var askNewSession bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askNewSession, "new-session", false,
		"start a fresh session instead of continuing the current one")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Keep stderr quiet for one-shot use; only warnings and errors.
	logger := log.New(log.Config{Level: slog.LevelWarn})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	question := strings.Join(args, " ")

	var sessionID string
	if a.Memory != nil {
		sessionID, err = currentSessionID(askNewSession)
		if err != nil {
			logger.Warn("session state unavailable, continuing without memory", "error", err)
			sessionID = ""
		}
	}

	answer, err := a.Orchestrator.Answer(ctx, orchestrator.Query{
		Text:      question,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(answer.Text)

	if len(answer.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range answer.Citations {
			fmt.Printf("  [%s] %s\n", c.Marker, c.Summary)
		}
	}
	if len(answer.Degraded) > 0 {
		fmt.Fprintf(os.Stderr, "note: sources unavailable: %s\n", strings.Join(answer.Degraded, ", "))
	}

	return nil
}

// currentSessionID resolves the session to continue across ask
// invocations, minting a new one when none exists or startNew is set.
func currentSessionID(startNew bool) (string, error) {
	if !startNew {
		id, err := session.LoadCurrentSessionID()
		if err != nil {
			return "", err
		}
		if id != nil {
			return id.String(), nil
		}
	}

	id := uuid.New()
	if err := session.SaveCurrentSessionID(id); err != nil {
		return "", err
	}
	return id.String(), nil
}
