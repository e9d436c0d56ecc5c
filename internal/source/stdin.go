package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// maxLineSize bounds a single scanned line.
const maxLineSize = 1024 * 1024

// StdinOption configures a StdinSource.
type StdinOption func(*StdinSource)

// WithReader overrides the default stdin reader (useful for testing).
func WithReader(r io.Reader) StdinOption {
	return func(s *StdinSource) { s.reader = r }
}

// WithParser sets the line parser. The default detects the format per line.
func WithParser(p record.Parser) StdinOption {
	return func(s *StdinSource) { s.parser = p }
}

// WithName sets the logger name given to records that carry none.
func WithName(name string) StdinOption {
	return func(s *StdinSource) { s.name = name }
}

// StdinSource reads log lines from piped standard input, for example
//
//	kubectl logs -f pod | logrecorder capture
//	docker logs -f container | logrecorder capture --limit 64KiB
type StdinSource struct {
	*Hub
	reader io.Reader
	parser record.Parser
	name   string
	errs   chan error
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// NewStdinSource creates a new StdinSource with the given options.
func NewStdinSource(opts ...StdinOption) *StdinSource {
	s := &StdinSource{
		reader: os.Stdin,
		name:   "stdin",
		done:   make(chan struct{}),
		errs:   make(chan error, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.parser == nil {
		s.parser = record.NewAutoParser()
	}
	s.Hub = NewHub(s.name)
	return s
}

// IsPipe reports whether stdin is not a terminal.
func IsPipe() bool {
	return !term.IsTerminal(int(os.Stdin.Fd()))
}

func (s *StdinSource) Errors() <-chan error  { return s.errs }
func (s *StdinSource) Done() <-chan struct{} { return s.done }

// Start reads lines until ctx is cancelled or EOF is reached, emitting one
// record per line. It blocks for the duration of the read.
func (s *StdinSource) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	defer close(s.done)
	defer close(s.errs)

	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Emit(s.parser.Parse(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		err = fmt.Errorf("stdin read error: %w", err)
		select {
		case s.errs <- err:
		default:
		}
		return err
	}
	return nil
}

// Stop cancels reading and waits for Start to return. A blocked read only
// returns once the underlying reader yields or is closed.
func (s *StdinSource) Stop() error {
	started := false
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			started = true
		}
	})
	if started {
		<-s.done
	}
	return nil
}
