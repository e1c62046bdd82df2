package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/pulsemix/internal/shared"
	"github.com/desertthunder/pulsemix/internal/tasks"
	"github.com/desertthunder/pulsemix/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/pulsemix-tui.log"

// TUI launches the interactive mood dashboard.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	if err := os.MkdirAll(filepath.Dir(tuiLogPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(tuiLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()

	fileLogger := shared.NewLogger(logFile)
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	st, err := r.wire()
	if err != nil {
		return err
	}
	defer st.Close()

	userID := r.userID(cmd)
	if samples := cmd.StringSlice("sample"); len(samples) > 0 {
		if _, err := r.syncSamples(ctx, st.engine, samples, tasks.SyncOptions{UserID: userID}); err != nil {
			return err
		}
	}

	model := ui.NewModel(ctx, st.engine, ui.Options{
		UserID: userID,
		Sync:   st.whoop != nil,
		Enrich: r.config.Enrichment.Enabled,
		Token: func(ctx context.Context) (string, error) {
			return st.catalogToken(ctx, userID)
		},
		Open: shared.OpenBrowser,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
