package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/adapters/gemini"
	"github.com/satriahrh/oralexam/adapters/portaudio"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/usecase"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run one evaluation on the local microphone and speakers",
	Long: `Run one evaluation session on the default audio devices.

The session ends when the examiner reports a result, when the time limit
is reached, or on Ctrl-C. The result is printed to stdout as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		results, closeResults, err := openResults(cfg, logger)
		if err != nil {
			return err
		}
		defer closeResults()

		dialer, err := gemini.NewDialer(cfg.Gemini(), logger)
		if err != nil {
			return err
		}

		engine, err := usecase.NewEngine(usecase.EngineDeps{
			Dialer:  dialer,
			Input:   portaudio.NewInputDevice(cfg.CaptureRate, 0, logger),
			Output:  portaudio.NewOutputDevice(0, logger),
			Results: results,
		}, cfg.Engine(), logger)
		if err != nil {
			return err
		}

		final := runSession(cmd.Context(), engine, logger)
		if final.Result == nil {
			if final.Error != "" {
				return fmt.Errorf("session ended without a result: %s", final.Error)
			}
			return errors.New("session ended without a result")
		}

		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")
		return out.Encode(final.Result)
	},
}

// runSession drives one session to its end and returns the final snapshot
func runSession(ctx context.Context, engine *usecase.Engine, logger *zap.Logger) entities.Snapshot {
	ended := make(chan entities.Snapshot, 1)
	lastLeft := -1
	engine.OnChange(func(snap entities.Snapshot) {
		if snap.TimeLeft != lastLeft && snap.TimeLeft%30 == 0 {
			logger.Info("Time left", zap.Int("seconds", snap.TimeLeft))
		}
		lastLeft = snap.TimeLeft
		if snap.State.IsTerminal() {
			select {
			case ended <- snap:
			default:
			}
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	if err := engine.Connect(ctx); err != nil {
		logger.Error("Failed to connect", zap.Error(err))
		return engine.Snapshot()
	}
	if err := engine.StartRecording(ctx); err != nil {
		logger.Error("Failed to start recording", zap.Error(err))
		return engine.Snapshot()
	}
	logger.Info("Recording, speak to the examiner. Press Ctrl-C to stop.")

	select {
	case snap := <-ended:
		return snap
	case <-quit:
		logger.Info("Stopping session")
		engine.Stop()
		return engine.Snapshot()
	}
}
