// Package sender delivers outbound platform calls on a bounded worker pool
// with retries for transient network failures.
package sender

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("sender: queue full")
	// ErrJobPanicked marks a job whose run function panicked.
	ErrJobPanicked = errors.New("sender: job panicked")

	botTokenRe    = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
	accessTokenRe = regexp.MustCompile(`access_token=[^&\s"]+`)
)

const component = "sender"

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// Observer, if set, is told about every finished job.
	Observer Observer
}

// Observer receives job outcomes.
type Observer interface {
	SendFinished(action, kind string)
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func(context.Context) error
}

// Dispatcher executes outbound calls asynchronously with retries.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	mu   sync.RWMutex
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules run for asynchronous execution. The context passed to run
// carries the job deadline. run must be idempotent if retries are desired.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("sender: nil run function")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	j := job{
		ctx:      context.WithoutCancel(cmp.Or(ctx, context.Background())),
		action:   action,
		endpoint: endpoint,
		run:      run,
	}

	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits for workers to drain the queue.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		close(d.stop)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

// runSafe calls j.run, turning a panic into an error so the worker survives.
func runSafe(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(j.ctx, component, "UncaughtFault", append(j.attrs(),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)...)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return j.run(ctx)
}

func (d *Dispatcher) handleJob(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(j.ctx, component, "send.start", j.attrs()...)

	attempts, err := d.attempt(ctx, j)
	attrs := append(j.attrs(),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	)
	if err == nil {
		if attempts > 1 {
			logger.Info(j.ctx, component, "send.retry.success", attrs...)
		} else {
			logger.Debug(j.ctx, component, "send.success", attrs...)
		}
		d.observe(j.action, "ok")
		return
	}

	d.errs.Add(1)
	kind := classifyError(err)
	logger.Error(j.ctx, component, "send.fail", append(attrs,
		slog.String("err", SanitizeError(err)),
		slog.String("err_code", kind),
	)...)
	d.observe(j.action, kind)
}

// attempt runs j until it succeeds, fails permanently, exhausts MaxRetries or
// hits the job deadline. It returns the number of runs made.
func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	limit := d.opts.MaxRetries + 1
	var err error
	for n := 1; ; n++ {
		if err = runSafe(ctx, j); err == nil {
			return n, nil
		}
		if n == limit || !netutil.ShouldRetry(err) {
			return n, err
		}

		delay := d.opts.RetryBackoff * time.Duration(n)
		logger.Debug(j.ctx, component, "send.retry.backoff", append(j.attrs(),
			slog.Int("attempt", n),
			slog.Duration("delay", delay),
			slog.String("err", SanitizeError(err)),
		)...)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) observe(action, kind string) {
	if d.opts.Observer != nil {
		d.opts.Observer.SendFinished(action, kind)
	}
}

func (j job) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// classifyError maps a send failure onto a small label set used by logs and
// metrics: timeout, dns, dial, tls, http_4xx, http_5xx or unknown.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	var (
		dnsErr   *net.DNSError
		netErr   net.Error
		opErr    *net.OpError
		alertErr tls.AlertError
		certErr  *tls.CertificateVerificationError
		coder    statusCoder
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &alertErr), errors.As(err, &certErr):
		return "tls"
	case errors.As(err, &coder):
		switch status := coder.StatusCode(); {
		case status >= 500:
			return "http_5xx"
		case status >= 400:
			return "http_4xx"
		}
	}
	return "unknown"
}

// SanitizeError renders err with platform credentials redacted.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	msg = botTokenRe.ReplaceAllString(msg, "bot<redacted>")
	return accessTokenRe.ReplaceAllString(msg, "access_token=<redacted>")
}
