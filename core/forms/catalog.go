package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/netutil"
)

var (
	// ErrCatalogEmpty is returned when there is no form a conversation can start with.
	ErrCatalogEmpty = errors.New("forms: catalog empty")
	// ErrCatalogLoad wraps every failure of fetching or decoding the form source.
	ErrCatalogLoad = errors.New("forms: catalog load failed")
)

// Selection decides which catalog indexes PickRandom may return.
type Selection int

const (
	// SelectExcludeLast draws from [0, count-2]: the last form is never offered
	// and a catalog of one form counts as empty.
	SelectExcludeLast Selection = iota
	// SelectUniform draws from [0, count-1].
	SelectUniform
)

// maxSourceBytes caps the form source payload.
const maxSourceBytes = 8 << 20

// LoadObserver receives catalog load outcomes.
type LoadObserver interface {
	CatalogLoaded(forms, skipped int)
	CatalogLoadFailed(err error)
}

// CatalogOptions configures NewCatalog.
type CatalogOptions struct {
	SourceURL string
	Client    *http.Client
	Selection Selection
	// IntN returns a uniform int in [0, n); defaults to math/rand/v2.
	IntN     func(n int) int
	Observer LoadObserver
}

// Catalog holds the usable forms. It is safe for concurrent use.
type Catalog struct {
	opts CatalogOptions

	mu    sync.RWMutex
	forms []Form
}

// NewCatalog returns an empty catalog.
func NewCatalog(opts CatalogOptions) *Catalog {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.IntN == nil {
		opts.IntN = rand.IntN
	}
	return &Catalog{opts: opts}
}

// Load fetches the form source once and replaces the catalog on success.
// On failure the previous contents are kept.
func (c *Catalog) Load(ctx context.Context) error {
	start := time.Now()
	forms, skipped, err := c.fetch(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCatalogLoad, err)
		logger.Forms.LogAttrs(ctx, slog.LevelError, "catalog load failed",
			slog.String("event", "catalog.load"),
			slog.String("status", "fail"),
			slog.String("url", c.opts.SourceURL),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		if c.opts.Observer != nil {
			c.opts.Observer.CatalogLoadFailed(err)
		}
		return err
	}

	c.Replace(forms)

	ids := make([]string, 0, len(forms))
	for _, f := range forms {
		ids = append(ids, f.ID)
	}
	preview, more := logger.Preview(ids, 6)
	attrs := []slog.Attr{
		slog.String("event", "catalog.load"),
		slog.String("status", "ok"),
		slog.Int("forms", len(forms)),
		slog.Int("skipped", skipped),
		slog.Duration("duration", logger.Took(start)),
	}
	if preview != "" {
		attrs = append(attrs, slog.String("forms_preview", preview))
	}
	if more > 0 {
		attrs = append(attrs, slog.Int("forms_more", more))
	}
	logger.Forms.LogAttrs(ctx, slog.LevelInfo, "got form list", attrs...)
	if c.opts.Observer != nil {
		c.opts.Observer.CatalogLoaded(len(forms), skipped)
	}
	return nil
}

// LoadAsync runs Load in the background. The returned channel receives the
// result and is closed; callers may ignore it.
func (c *Catalog) LoadAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.Load(ctx)
	}()
	return done
}

func (c *Catalog) fetch(ctx context.Context) ([]Form, int, error) {
	if c.opts.SourceURL == "" {
		return nil, 0, errors.New("source url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.SourceURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, 0, &netutil.StatusError{Method: http.MethodGet, URL: c.opts.SourceURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return ParseForms(body)
}

// Replace swaps the catalog contents. Forms without questions are dropped.
func (c *Catalog) Replace(forms []Form) {
	cp := make([]Form, 0, len(forms))
	for _, f := range forms {
		if len(f.Questions) > 0 {
			cp = append(cp, f)
		}
	}
	c.mu.Lock()
	c.forms = cp
	c.mu.Unlock()
}

// Len returns the number of usable forms.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.forms)
}

// Forms returns a copy of the catalog contents.
func (c *Catalog) Forms() []Form {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Form(nil), c.forms...)
}

// PickRandom returns a form chosen according to the catalog's Selection.
func (c *Catalog) PickRandom() (Form, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, err := c.pickIndex(len(c.forms))
	if err != nil {
		return Form{}, err
	}
	return c.forms[idx], nil
}

func (c *Catalog) pickIndex(count int) (int, error) {
	n := count
	if c.opts.Selection == SelectExcludeLast {
		n = count - 1
	}
	if n <= 0 {
		return 0, ErrCatalogEmpty
	}
	return c.opts.IntN(n), nil
}
