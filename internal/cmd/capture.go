package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/clarabennett2626/logrecorder/internal/capture"
	"github.com/clarabennett2626/logrecorder/internal/config"
	"github.com/clarabennett2626/logrecorder/internal/diag"
	"github.com/clarabennett2626/logrecorder/internal/layout"
	"github.com/clarabennett2626/logrecorder/internal/metrics"
	"github.com/clarabennett2626/logrecorder/internal/record"
	"github.com/clarabennett2626/logrecorder/internal/source"
	"github.com/clarabennett2626/logrecorder/internal/tui"
)

var captureCmd = &cobra.Command{
	Use:   "capture [files...]",
	Short: "Capture the most recent log records",
	Long: `Capture records from files or stdin until the input ends, the duration
elapses or the process is interrupted, then print what was retained.

With no files, records are read from stdin. Files are followed across
rotation and truncation, so a file capture runs until it is stopped.

The capture is bounded by --limit: in bytes of rendered output with
--policy bytes, in records with --policy count. The oldest records are
evicted first.`,
	RunE: runCapture,
}

// captureFlagKeys maps capture flags onto config keys.
var captureFlagKeys = map[string]string{
	"limit":           "capture.limit",
	"policy":          "capture.policy",
	"pattern":         "capture.pattern",
	"charset":         "capture.charset",
	"evict-oversized": "capture.evict_oversized",
	"tail":            "source.tail_lines",
	"metrics":         "metrics.enabled",
	"fields":          "tui.show_fields",
}

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.Int64("limit", 0, "capture bound in bytes or records; negative disables eviction")
	f.String("policy", "", "eviction policy: bytes or count")
	f.String("pattern", "", "layout pattern used to render records (e.g. \"%d [%level] %msg%n\")")
	f.String("charset", "", "charset of the captured output")
	f.Bool("evict-oversized", false, "drop a single record larger than the limit instead of keeping it")
	f.Int("tail", 0, "existing lines to read from each file; 0 reads everything")
	f.Bool("metrics", false, "print capture metrics to stderr when done")
	f.Bool("fields", false, "show structured fields in styled output and the viewer")
	f.Bool("view", false, "watch the capture live in a terminal viewer")
	f.Bool("styled", false, "render the capture with the terminal renderer instead of the pattern")
	f.Duration("duration", 0, "stop capturing after this long; 0 waits for end of input")
}

func bindCaptureFlags(cmd *cobra.Command) error {
	for name, key := range captureFlagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	if err := bindCaptureFlags(cmd); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := openSource(cmd, args, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d, _ := cmd.Flags().GetDuration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var opts []capture.SessionOption
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, capture.WithObserver(m))
	}

	view, _ := cmd.Flags().GetBool("view")
	styled, _ := cmd.Flags().GetBool("styled")
	switch {
	case view:
		err = runViewer(ctx, src, cfg, opts)
	case styled:
		err = captureStyled(ctx, cmd.OutOrStdout(), src, cfg, opts)
	default:
		err = captureBytes(ctx, cmd.OutOrStdout(), src, cfg, opts)
	}
	if err != nil {
		return err
	}
	if m != nil {
		return m.WriteText(cmd.ErrOrStderr())
	}
	return nil
}

// openSource selects stdin when no files are given.
func openSource(cmd *cobra.Command, args []string, cfg *config.Config) (source.Source, error) {
	if len(args) > 0 {
		return source.NewFileSource(source.FileConfig{
			Patterns:     args,
			TailLines:    cfg.Source.TailLines,
			PollInterval: cfg.Source.PollInterval(),
		}), nil
	}
	in := cmd.InOrStdin()
	if in == os.Stdin && !source.IsPipe() {
		return nil, errors.New("no input: pass log files or pipe logs to stdin")
	}
	return source.NewStdinSource(source.WithReader(in)), nil
}

// pump runs src until it ends or ctx is done. Source errors go to onErr, or
// the diagnostic log when onErr is nil, and do not end the capture. An error
// returned by Start ends it and is returned.
func pump(ctx context.Context, src source.Source, onErr func(error)) error {
	if onErr == nil {
		log := diag.Component("source")
		onErr = func(err error) { log.Warn().Err(err).Msg("source error") }
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start blocks for stdin and returns at once for files, so it runs
		// apart and the capture ends on whichever comes first.
		errc := make(chan error, 1)
		go func() { errc <- src.Start(gctx) }()
		for {
			select {
			case err := <-errc:
				if err != nil && gctx.Err() == nil {
					return err
				}
				errc = nil
			case <-src.Done():
				if errc != nil {
					// Done closes while Start is returning.
					if err := <-errc; err != nil && gctx.Err() == nil {
						return err
					}
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case err, ok := <-src.Errors():
				if !ok {
					return nil
				}
				onErr(err)
			case <-gctx.Done():
				return nil
			}
		}
	})
	return g.Wait()
}

func captureBytes(ctx context.Context, w io.Writer, src source.Source, cfg *config.Config, opts []capture.SessionOption) error {
	rec, err := capture.StartRecorder(src, cfg.Capture.RecorderConfig(), opts...)
	if err != nil {
		return err
	}
	defer rec.Close()

	// Records read before a source failure are still written.
	srcErr := pump(ctx, src, nil)
	if _, err := w.Write(rec.FinishBytes()); err != nil {
		return err
	}
	return srcErr
}

func captureStyled(ctx context.Context, w io.Writer, src source.Source, cfg *config.Config, opts []capture.SessionOption) error {
	rec, err := capture.StartEventRecorderWith(src, cfg.Capture.BufferConfig(), opts...)
	if err != nil {
		return err
	}
	defer rec.Close()

	srcErr := pump(ctx, src, nil)
	rc, err := renderConfig(cfg)
	if err != nil {
		return err
	}
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		rc.Plain = true
	}
	if err := rec.FinishWithLayout(tui.NewRenderer(rc), w); err != nil {
		return err
	}
	return srcErr
}

func renderConfig(cfg *config.Config) (tui.RenderConfig, error) {
	rc := tui.DefaultConfig()
	theme, err := tui.ParseTheme(cfg.TUI.Theme)
	if err != nil {
		return rc, err
	}
	ts, err := tui.ParseTimestampFormat(cfg.TUI.TimestampFormat)
	if err != nil {
		return rc, err
	}
	rc.Theme = theme
	rc.TimestampFormat = ts
	rc.ShowAllFields = cfg.TUI.ShowFields
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		rc.TerminalWidth = w
	}
	return rc, nil
}

// viewerSize costs records for the viewer. Under the bytes policy a record
// costs its encoded length so the viewer keeps what a byte capture would.
func viewerSize(cfg *config.Config) (capture.SizeFunc[record.Entry], func() error, error) {
	if cfg.Capture.BufferConfig().Policy == capture.PolicyCount {
		return capture.EntrySize, func() error { return nil }, nil
	}
	enc := layout.NewPatternEncoder(cfg.Capture.Pattern, cfg.Capture.Charset)
	if err := enc.Start(); err != nil {
		return nil, nil, err
	}
	size := func(e record.Entry) int64 {
		b, err := enc.Encode(e)
		if err != nil {
			return 0
		}
		return int64(len(b))
	}
	return size, enc.Stop, nil
}

func runViewer(ctx context.Context, src source.Source, cfg *config.Config, opts []capture.SessionOption) error {
	size, stopEnc, err := viewerSize(cfg)
	if err != nil {
		return err
	}
	defer stopEnc()

	s := capture.NewSession(size, func(e record.Entry) (record.Entry, error) { return e, nil }, opts...)
	if err := s.Start(src, cfg.Capture.BufferConfig()); err != nil {
		return err
	}
	defer s.Close()

	rc, err := renderConfig(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(tui.NewCaptureModel(s, tui.NewRenderer(rc), cfg.TUI.RefreshInterval()),
		tea.WithAltScreen(), tea.WithInputTTY(), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		done <- pump(ctx, src, func(err error) { prog.Send(tui.ErrMsg{Err: err}) })
	}()

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("viewer: %w", err)
	}
	cancel()
	return <-done
}
