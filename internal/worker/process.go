package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	consolestream "github.com/wolfeidau/console-stream"

	"github.com/capflowhq/capflow/internal/objectstore"
)

// outputTailLimit caps how much process output is retained for error text.
const outputTailLimit = 4000

// presignExpiry is how long a presigned input URL stays valid. It has to
// outlive the longest download the worker performs, not the whole job.
const presignExpiry = time.Hour

// ProcessInvoker runs the compute worker as a local subprocess and streams
// its output through the structured log. A non-zero exit code is a dispatch
// failure carrying the tail of the process output.
type ProcessInvoker struct {
	command string
	args    []string
	env     map[string]string

	// inputs, when set, presigns bare object keys into GET URLs so the
	// subprocess can fetch its input without bucket credentials.
	inputs objectstore.Store
}

var _ Invoker = (*ProcessInvoker)(nil)

// ProcessOption configures a ProcessInvoker.
type ProcessOption func(*ProcessInvoker)

// WithEnv sets extra environment variables for the subprocess.
func WithEnv(env map[string]string) ProcessOption {
	return func(p *ProcessInvoker) { p.env = env }
}

// WithInputPresigner makes the invoker presign bare input keys against the
// given store before handing them to the subprocess.
func WithInputPresigner(inputs objectstore.Store) ProcessOption {
	return func(p *ProcessInvoker) { p.inputs = inputs }
}

// NewProcessInvoker creates an invoker that runs command with the given base
// arguments, appending per-request flags on each invocation.
func NewProcessInvoker(command string, args []string, opts ...ProcessOption) *ProcessInvoker {
	p := &ProcessInvoker{command: command, args: args}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invoke runs the subprocess to completion. The context deadline kills the
// process and reports ErrTimeout.
func (p *ProcessInvoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	input, err := p.resolveInput(ctx, req.InputLocator)
	if err != nil {
		return nil, err
	}

	argv := p.buildArgs(req, input)

	opts := []consolestream.ProcessOption{
		consolestream.WithPipeMode(),
		consolestream.WithFlushInterval(time.Second),
	}
	if len(p.env) > 0 {
		opts = append(opts, consolestream.WithEnvMap(p.env))
	}

	process := consolestream.NewProcess(p.command, argv, opts...)

	log.Info().Str("job_id", req.JobID).Str("command", p.command).Msg("Starting worker process")

	var tail outputTail
	for event, err := range process.ExecuteAndStream(ctx) {
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("worker process %s timed out: %w", p.command, ErrTimeout)
			}
			return nil, fmt.Errorf("run worker process %s: %w", p.command, err)
		}

		switch e := event.Event.(type) {
		case *consolestream.ProcessStart:
			log.Debug().Str("job_id", req.JobID).Int("pid", e.PID).Msg("Worker process started")
		case *consolestream.OutputData:
			tail.Write(e.Data)
			log.Debug().Str("job_id", req.JobID).Msg(strings.TrimRight(string(e.Data), "\n"))
		case *consolestream.ProcessEnd:
			if e.ExitCode != 0 {
				return nil, fmt.Errorf("worker process exited with code %d: %s: %w",
					e.ExitCode, tail.String(), ErrWorkerFailed)
			}
			log.Info().Str("job_id", req.JobID).Dur("duration", e.Duration).Msg("Worker process completed")
			return &Response{Status: StatusSuccess, JobID: req.JobID}, nil
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("worker process %s timed out: %w", p.command, ErrTimeout)
	}
	return nil, fmt.Errorf("worker process %s ended without an exit event", p.command)
}

// resolveInput presigns bare object keys when a presigner is configured.
// Locators that already carry a scheme (local paths included) pass through.
func (p *ProcessInvoker) resolveInput(ctx context.Context, locator string) (string, error) {
	if p.inputs == nil || strings.Contains(locator, "://") || strings.HasPrefix(locator, "/") {
		return locator, nil
	}
	url, err := p.inputs.PresignGet(ctx, locator, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign input %s: %w", locator, err)
	}
	return url, nil
}

func (p *ProcessInvoker) buildArgs(req Request, input string) []string {
	argv := append([]string{}, p.args...)
	argv = append(argv,
		"--video_path", input,
		"--job_id", req.JobID,
		"--hls_output",
		"--hls_segment", strconv.Itoa(req.SegmentDuration),
		"--output_s3_prefix", req.OutputPrefix,
	)
	if req.SourceLang != "" {
		argv = append(argv, "--source_lang", req.SourceLang)
	}
	if req.TargetLang != "" {
		argv = append(argv, "--target_lang", req.TargetLang)
	}
	if req.Dubbing {
		argv = append(argv, "--dubbing")
	}
	return argv
}

// outputTail retains the last outputTailLimit bytes written to it.
type outputTail struct {
	buf []byte
}

func (t *outputTail) Write(data []byte) {
	t.buf = append(t.buf, data...)
	if len(t.buf) > outputTailLimit {
		t.buf = t.buf[len(t.buf)-outputTailLimit:]
	}
}

func (t *outputTail) String() string {
	return strings.TrimSpace(string(t.buf))
}
