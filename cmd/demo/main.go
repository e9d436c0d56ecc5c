// Demo tool that records an application's own slog output in process and
// prints the bounded capture three ways.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/clarabennett2626/logrecorder/internal/capture"
	"github.com/clarabennett2626/logrecorder/internal/source"
	"github.com/clarabennett2626/logrecorder/internal/tui"
)

func main() {
	handler := source.NewSlogHandler("demo", nil, nil)
	logger := slog.New(handler)

	// 1. Keep the last 3 structured records of a failing job.
	entries, err := capture.RecordEvents(logger, 3, func() error {
		return runJob(logger, 8)
	})
	fmt.Printf("📋 job failed (%v), last %d records:\n", err, len(entries))
	renderer := tui.NewRenderer(tui.RenderConfig{
		TimestampFormat: tui.TimestampLocal,
		Theme:           tui.ThemeDark,
		TerminalWidth:   120,
		ShowAllFields:   true,
	})
	if err := capture.RenderWithLayout(entries, renderer, os.Stdout); err != nil {
		fail(err)
	}

	// 2. Keep the last 96 bytes of pattern-rendered output.
	cfg := capture.DefaultRecorderConfig()
	cfg.Pattern = "%d{15:04:05} %-5level %logger %msg %fields%n"
	cfg.Limit = 96
	rec, err := capture.StartRecorder(handler, cfg)
	if err != nil {
		fail(err)
	}
	_ = runJob(logger.WithGroup("retry"), 4)
	text, err := rec.Finish()
	if err != nil {
		fail(err)
	}
	fmt.Printf("\n📋 last %d bytes:\n%s", cfg.Limit, text)

	// 3. Nothing is captured once the recorder is finished.
	logger.Info("after capture")
	fmt.Printf("\n📋 listeners left attached: %d\n", handler.Listeners())
}

func runJob(logger *slog.Logger, steps int) error {
	for i := 1; i <= steps; i++ {
		logger.Info("step done", "step", i, "elapsed", time.Duration(i)*time.Millisecond)
	}
	logger.Error("job failed", "err", "connection reset")
	return errors.New("connection reset")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
