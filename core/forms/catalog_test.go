package forms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formrelay/core/netutil"
)

const sourcePayload = `[
  {
    "id": "f1",
    "header": {"heading": "Coffee habits", "title": "ignored"},
    "steps": [{"widgets": [
      {"id": "w1", "title": "Favourite drink", "component": "MultipleChoice",
       "props": {"options": [{"title": "Espresso"}, {"title": "Latte"}]}},
      {"id": 7, "title": "Why", "description": "be honest", "component": "TextInput"}
    ]}],
    "settings": {"saveDestination": "https://sink.example/forms/"}
  },
  {
    "id": "empty",
    "header": {"title": "No widgets"},
    "steps": [{"widgets": []}],
    "settings": {"saveDestination": "https://sink.example/forms/"}
  },
  {
    "id": 42,
    "header": {"title": "Fallback title"},
    "steps": [{"widgets": [{"id": "a", "title": "Name"}]}],
    "settings": {"saveDestination": "https://other.example/"}
  },
  {"id": "nosteps", "header": {"title": "x"}, "settings": {}}
]`

type loadRecorder struct {
	forms, skipped int
	failures       []error
}

func (r *loadRecorder) CatalogLoaded(forms, skipped int) { r.forms, r.skipped = forms, skipped }
func (r *loadRecorder) CatalogLoadFailed(err error)      { r.failures = append(r.failures, err) }

func TestParseFormsFiltersAndMaps(t *testing.T) {
	got, skipped, err := ParseForms([]byte(sourcePayload))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, skipped)

	coffee := got[0]
	assert.Equal(t, "f1", coffee.ID)
	assert.Equal(t, "Coffee habits", coffee.Title)
	assert.Equal(t, "https://sink.example/forms/f1", coffee.SubmitURL())
	require.Len(t, coffee.Questions, 2)
	assert.Equal(t, KindMultipleChoice, coffee.Questions[0].Kind)
	assert.Equal(t, []Option{{Title: "Espresso"}, {Title: "Latte"}}, coffee.Questions[0].Options)
	assert.Equal(t, KindFreeText, coffee.Questions[1].Kind)
	assert.Equal(t, "7", coffee.Questions[1].ID)
	assert.Equal(t, "be honest", coffee.Questions[1].Description)
	assert.Empty(t, coffee.Questions[1].Options)

	assert.Equal(t, "42", got[1].ID)
	assert.Equal(t, "Fallback title", got[1].Title)
}

func TestParseFormsRejectsInvalidJSON(t *testing.T) {
	_, _, err := ParseForms([]byte(`{"not":"an array"}`))
	require.Error(t, err)
}

func TestCatalogLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sourcePayload))
	}))
	defer srv.Close()

	rec := &loadRecorder{}
	c := NewCatalog(CatalogOptions{SourceURL: srv.URL, Client: srv.Client(), Observer: rec})
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 2, rec.forms)
	assert.Equal(t, 2, rec.skipped)
	assert.Empty(t, rec.failures)
}

func TestCatalogLoadFailureKeepsPreviousForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	rec := &loadRecorder{}
	c := NewCatalog(CatalogOptions{SourceURL: srv.URL, Client: srv.Client(), Observer: rec})
	previous := []Form{{ID: "kept", Questions: []Question{{ID: "q"}}}}
	c.Replace(previous)

	err := c.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCatalogLoad))
	var statusErr *netutil.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode())

	assert.Equal(t, previous, c.Forms())
	assert.Len(t, rec.failures, 1)
}

func TestCatalogLoadAsyncStartsEmpty(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(sourcePayload))
	}))
	defer srv.Close()

	c := NewCatalog(CatalogOptions{SourceURL: srv.URL, Client: srv.Client()})
	done := c.LoadAsync(context.Background())

	_, err := c.PickRandom()
	assert.ErrorIs(t, err, ErrCatalogEmpty)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, c.Len())
}

func TestCatalogLoadWithoutSource(t *testing.T) {
	c := NewCatalog(CatalogOptions{})
	err := c.Load(context.Background())
	assert.ErrorIs(t, err, ErrCatalogLoad)
	assert.Zero(t, c.Len())
}

func catalogOf(n int, sel Selection, intN func(int) int) *Catalog {
	c := NewCatalog(CatalogOptions{Selection: sel, IntN: intN})
	fs := make([]Form, n)
	for i := range fs {
		fs[i] = Form{ID: string(rune('a' + i)), Questions: []Question{{ID: "q"}}}
	}
	c.Replace(fs)
	return c
}

func TestPickRandomExcludesLastForm(t *testing.T) {
	for count := 2; count <= 6; count++ {
		c := catalogOf(count, SelectExcludeLast, nil)
		seen := map[string]bool{}
		for i := 0; i < 500; i++ {
			f, err := c.PickRandom()
			require.NoError(t, err)
			seen[f.ID] = true
		}
		last := string(rune('a' + count - 1))
		assert.False(t, seen[last], "count=%d picked the last form", count)
		assert.Len(t, seen, count-1, "count=%d", count)
	}
}

func TestPickRandomPassesRangeToSource(t *testing.T) {
	var asked []int
	intN := func(n int) int {
		asked = append(asked, n)
		return n - 1
	}

	f, err := catalogOf(4, SelectExcludeLast, intN).PickRandom()
	require.NoError(t, err)
	assert.Equal(t, "c", f.ID)

	f, err = catalogOf(4, SelectUniform, intN).PickRandom()
	require.NoError(t, err)
	assert.Equal(t, "d", f.ID)

	assert.Equal(t, []int{3, 4}, asked)
}

func TestPickRandomEmptyCatalog(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		sel     Selection
		wantErr bool
	}{
		{name: "exclude last, none", count: 0, sel: SelectExcludeLast, wantErr: true},
		{name: "exclude last, one", count: 1, sel: SelectExcludeLast, wantErr: true},
		{name: "uniform, none", count: 0, sel: SelectUniform, wantErr: true},
		{name: "uniform, one", count: 1, sel: SelectUniform, wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalogOf(tt.count, tt.sel, nil).PickRandom()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCatalogEmpty)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestReplaceDropsFormsWithoutQuestions(t *testing.T) {
	c := NewCatalog(CatalogOptions{})
	c.Replace([]Form{{ID: "a"}, {ID: "b", Questions: []Question{{ID: "q"}}}})
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "b", c.Forms()[0].ID)
}
