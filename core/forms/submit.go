package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/netutil"
)

// ErrSubmission wraps every failure of posting an answer set.
var ErrSubmission = errors.New("forms: submission failed")

// HTTPSubmitter posts completed answer sets as JSON.
type HTTPSubmitter struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPSubmitter builds a submitter; every Submit call is bounded by timeout.
func NewHTTPSubmitter(client *http.Client, timeout time.Duration) *HTTPSubmitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSubmitter{client: client, timeout: timeout}
}

// Submit posts answers to url. The response body is ignored; any non-2xx
// status is a failure.
func (s *HTTPSubmitter) Submit(ctx context.Context, url string, answers []Answer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if answers == nil {
		answers = []Answer{}
	}
	body, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("%w: encode answers: %w", ErrSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")
	rid := logger.RIDFrom(ctx)
	if rid == "" {
		rid = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", rid)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %w", ErrSubmission,
			&netutil.StatusError{Method: http.MethodPost, URL: url, Code: resp.StatusCode})
	}
	return nil
}
