package forms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formrelay/core/logger"
	"github.com/m3rciful/formrelay/core/netutil"
)

func TestHTTPSubmitterPostsAnswersInOrder(t *testing.T) {
	var (
		got    []Answer
		header http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/forms/f1", r.URL.Path)
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	answers := []Answer{
		{Answer: "Latte", WidgetID: "w1"},
		{Answer: "because", WidgetID: "7"},
	}
	ctx := logger.WithRID(context.Background(), "rid-1")
	s := NewHTTPSubmitter(srv.Client(), time.Second)
	require.NoError(t, s.Submit(ctx, srv.URL+"/forms/f1", answers))

	assert.Equal(t, answers, got)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "rid-1", header.Get("X-Request-ID"))
}

func TestHTTPSubmitterGeneratesRequestID(t *testing.T) {
	var rid string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid = r.Header.Get("X-Request-ID")
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPSubmitter(srv.Client(), 0).Submit(context.Background(), srv.URL, nil))
	assert.Len(t, rid, 36)
}

func TestHTTPSubmitterRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPSubmitter(srv.Client(), time.Second).Submit(context.Background(), srv.URL, []Answer{{Answer: "a", WidgetID: "b"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubmission))
	var statusErr *netutil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestHTTPSubmitterTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := NewHTTPSubmitter(srv.Client(), 50*time.Millisecond).Submit(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmission)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
