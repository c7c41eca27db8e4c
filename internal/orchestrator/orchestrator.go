// Package orchestrator supervises one remote pod from submission to a
// terminal phase.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"podlauncher/internal/provider"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Outcome is the orchestrator's terminal verdict. TIMED_OUT is local to the
// orchestrator; the provider never reports it.
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeTimedOut  Outcome = "TIMED_OUT"
)

// logTailLimit bounds the diagnostic log tail attached to a terminal result.
const logTailLimit = 4096

// defaultSubmitAttempts is the submission retry ceiling. The wait before
// retry n (0-indexed) is 2^n plus up to one second of jitter.
const defaultSubmitAttempts = 5

// TerminalResult describes how the supervised pod ended.
type TerminalResult struct {
	Outcome   Outcome
	LastPhase provider.Phase
	Elapsed   time.Duration
	ExitCode  *int
	LogTail   string
}

// Options configures an Orchestrator.
type Options struct {
	PollInterval time.Duration
	MaxRuntime   time.Duration

	// SubmitAttempts overrides the retry ceiling; zero means the default.
	SubmitAttempts int

	// TerminateOnTimeout requests a best-effort pod terminate when the
	// deadline passes, so an abandoned pod does not keep billing.
	TerminateOnTimeout bool

	// Out receives the streamed log deltas. Defaults to stdout.
	Out io.Writer
}

// Orchestrator drives one pod through the provider API. It owns the log
// cursor; nothing outside the wait loop touches it.
type Orchestrator struct {
	client provider.Client
	log    *slog.Logger
	opts   Options

	// Injected for tests; real clock and sleeper otherwise.
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
	jitter func() float64

	polls          metric.Int64Counter
	transientFails metric.Int64Counter
	submitRetries  metric.Int64Counter
	submitAttempts metric.Int64Histogram
}

// New creates an orchestrator around the given provider client.
func New(client provider.Client, log *slog.Logger, opts Options) *Orchestrator {
	if opts.SubmitAttempts <= 0 {
		opts.SubmitAttempts = defaultSubmitAttempts
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	meter := otel.Meter("podlauncher/orchestrator")
	polls, _ := meter.Int64Counter("podlauncher.polls",
		metric.WithDescription("Status poll iterations"))
	transient, _ := meter.Int64Counter("podlauncher.poll_transient_errors",
		metric.WithDescription("Poll fetches that failed and were skipped"))
	retries, _ := meter.Int64Counter("podlauncher.submit_retries",
		metric.WithDescription("Pod creation attempts that were retried"))
	attempts, _ := meter.Int64Histogram("podlauncher.submit_attempts",
		metric.WithDescription("Attempts needed before pod creation succeeded"))

	return &Orchestrator{
		client:         client,
		log:            log,
		opts:           opts,
		now:            time.Now,
		sleep:          sleepCtx,
		jitter:         rand.Float64,
		polls:          polls,
		transientFails: transient,
		submitRetries:  retries,
		submitAttempts: attempts,
	}
}

// Submit creates the pod, retrying transient provider failures with
// exponential backoff plus jitter up to the attempt ceiling. Application
// errors, missing identifiers and non-retryable HTTP statuses fail on the
// first attempt.
func (o *Orchestrator) Submit(ctx context.Context, req provider.JobRequest) (string, error) {
	tracer := otel.Tracer("podlauncher")
	ctx, span := tracer.Start(ctx, "submit_pod",
		trace.WithAttributes(
			attribute.String("pod.image", req.Image),
			attribute.String("pod.gpu_type", req.GPUTypeID),
			attribute.String("pod.cloud_type", req.CloudType),
		),
	)
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < o.opts.SubmitAttempts; attempt++ {
		podID, err := o.client.Create(ctx, req)
		if err == nil {
			if podID == "" {
				// Providers must not hand back an empty handle.
				span.RecordError(provider.ErrMissingPodID)
				return "", provider.ErrMissingPodID
			}
			span.SetAttributes(attribute.String("pod.id", podID))
			o.submitAttempts.Record(ctx, int64(attempt+1))
			o.log.Info("pod created", "pod_id", podID, "attempt", attempt+1)
			return podID, nil
		}

		if !provider.IsRetryable(err) {
			span.RecordError(err)
			return "", err
		}

		lastErr = err
		if attempt == o.opts.SubmitAttempts-1 {
			break
		}

		wait := backoff(attempt, o.jitter())
		o.submitRetries.Add(ctx, 1)
		o.log.Warn("transient provider error, retrying",
			"attempt", attempt+1,
			"max_attempts", o.opts.SubmitAttempts,
			"wait", wait.Round(100*time.Millisecond).String(),
			"error", err.Error(),
		)
		if err := o.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	span.RecordError(lastErr)
	return "", fmt.Errorf("provider still failing after %d attempts: %w", o.opts.SubmitAttempts, lastErr)
}

// backoff returns 2^attempt seconds plus jitter seconds (jitter in [0,1)).
func backoff(attempt int, jitter float64) time.Duration {
	return time.Duration(1<<uint(attempt))*time.Second +
		time.Duration(jitter*float64(time.Second))
}

// Await polls the pod until it reaches a terminal phase or the wall-clock
// deadline passes. Each tick fetches status and cumulative logs and prints
// only the unseen log suffix. A single failed fetch is logged and skipped,
// not escalated: the provider recovering on the next tick is the common case.
func (o *Orchestrator) Await(ctx context.Context, podID string) (*TerminalResult, error) {
	tracer := otel.Tracer("podlauncher")
	ctx, span := tracer.Start(ctx, "await_pod",
		trace.WithAttributes(attribute.String("pod.id", podID)),
	)
	defer span.End()

	start := o.now()
	seen := 0
	fullLogs := ""
	lastPhase := provider.PhaseUnknown

	for {
		elapsed := o.now().Sub(start)
		if elapsed >= o.opts.MaxRuntime {
			o.log.Error("pod did not finish before the deadline",
				"pod_id", podID,
				"max_runtime", o.opts.MaxRuntime.String(),
				"last_phase", string(lastPhase),
			)
			if o.opts.TerminateOnTimeout {
				o.terminateQuietly(podID)
			}
			result := &TerminalResult{
				Outcome:   OutcomeTimedOut,
				LastPhase: lastPhase,
				Elapsed:   elapsed,
				LogTail:   tail(fullLogs),
			}
			span.SetAttributes(attribute.String("pod.outcome", string(result.Outcome)))
			return result, nil
		}

		o.polls.Add(ctx, 1)

		status, err := o.client.Status(ctx, podID)
		if err != nil {
			o.transientFails.Add(ctx, 1)
			o.log.Warn("status fetch failed, will retry next tick", "pod_id", podID, "error", err.Error())
			if err := o.sleep(ctx, o.opts.PollInterval); err != nil {
				return nil, err
			}
			continue
		}
		lastPhase = status.Phase

		logs, err := o.client.Logs(ctx, podID)
		if err != nil {
			o.transientFails.Add(ctx, 1)
			o.log.Warn("log fetch failed, will retry next tick", "pod_id", podID, "error", err.Error())
		} else {
			seen = o.printDelta(logs, seen)
			fullLogs = logs
		}

		o.log.Info("pod phase",
			"pod_id", podID,
			"phase", string(status.Phase),
			"raw_phase", status.RawPhase,
			"runtime_seconds", runtimeValue(status.RuntimeSeconds),
			"elapsed", elapsed.Round(time.Second).String(),
		)

		if status.Phase == provider.PhaseUnknown {
			o.log.Warn("unrecognized provider phase, treating as non-terminal",
				"pod_id", podID, "raw_phase", status.RawPhase)
		}

		if status.Phase.Terminal() {
			result := &TerminalResult{
				Outcome:   outcomeFor(status),
				LastPhase: status.Phase,
				Elapsed:   o.now().Sub(start),
				ExitCode:  status.ExitCode,
				LogTail:   tail(fullLogs),
			}
			span.SetAttributes(attribute.String("pod.outcome", string(result.Outcome)))
			return result, nil
		}

		if err := o.sleep(ctx, o.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

// Run submits the pod and supervises it to completion.
func (o *Orchestrator) Run(ctx context.Context, req provider.JobRequest) (*TerminalResult, error) {
	podID, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.Await(ctx, podID)
}

// outcomeFor maps a terminal status onto the orchestrator verdict. A
// SUCCEEDED phase with a non-zero exit code still counts as failure: the
// workload itself reported it did not finish its work.
func outcomeFor(status provider.Status) Outcome {
	if status.Phase == provider.PhaseSucceeded {
		if status.ExitCode != nil && *status.ExitCode != 0 {
			return OutcomeFailed
		}
		return OutcomeSucceeded
	}
	return OutcomeFailed
}

// printDelta writes the portion of logs past the seen cursor and returns
// the new cursor. The remote text is expected to only grow; if it ever
// shrinks the cursor clamps to the new length and nothing is printed.
func (o *Orchestrator) printDelta(logs string, seen int) int {
	if len(logs) < seen {
		return len(logs)
	}
	if len(logs) > seen {
		fmt.Fprint(o.opts.Out, logs[seen:])
	}
	return len(logs)
}

func (o *Orchestrator) terminateQuietly(podID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.client.Terminate(ctx, podID); err != nil {
		o.log.Warn("failed to terminate timed-out pod", "pod_id", podID, "error", err.Error())
		return
	}
	o.log.Info("terminated timed-out pod", "pod_id", podID)
}

func tail(logs string) string {
	if len(logs) > logTailLimit {
		return logs[len(logs)-logTailLimit:]
	}
	return logs
}

func runtimeValue(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
