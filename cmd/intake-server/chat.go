package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/platform/lock"
)

type turnRunner interface {
	HandleTurn(ctx context.Context, patientID, text string) (*intake.TurnResult, error)
}

func newChatService(cfg *config.Config, logger zerolog.Logger) *intake.Service {
	ext, ass := buildOracle(cfg, logger)
	return intake.NewService(intake.NewEngine(ext, ass, logger), intake.NewMemoryStore(), logger,
		intake.WithLocker(lock.NewMemory(), cfg.TurnLockWait))
}

// runChat feeds each input line to svc as patient and prints the replies
// until EOF or "/quit".
func runChat(ctx context.Context, in io.Reader, out io.Writer, patient string, svc turnRunner) error {
	fmt.Fprintln(out, `Type your messages. "/quit" ends the session.`)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return nil
		}
		if line == "" {
			continue
		}
		res, err := svc.HandleTurn(ctx, patient, line)
		if err != nil {
			return fmt.Errorf("turn: %w", err)
		}
		fmt.Fprintln(out, res.Text)
		if res.TerminalAction == intake.ActionGenerateReport {
			fmt.Fprintf(out, "[visit %d complete]\n", res.VisitNumber)
		}
	}
}
