package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/formrelay/core/config"

	tele "gopkg.in/telebot.v4"
)

type botAPI struct {
	mu      sync.Mutex
	methods []string
}

func (a *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	a.mu.Lock()
	a.methods = append(a.methods, method)
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if method == "getUpdates" {
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
}

func (a *botAPI) called(method string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.methods {
		if m == method {
			return true
		}
	}
	return false
}

func TestBuildPoller(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "longpoll"})
	lp, ok := p.(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, defaultLongPollTimeout*time.Second, lp.Timeout)
	assert.Equal(t, []string{"message", "callback_query"}, lp.AllowedUpdates)

	p = BuildPoller(PollerOptions{RunMode: " Webhook ", Webhook: WebhookOptions{Port: 8443, URL: "https://bot.example/hook"}})
	wh, ok := p.(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, ":8443", wh.Listen)
	assert.Equal(t, "https://bot.example/hook", wh.Endpoint.PublicURL)
	assert.Equal(t, allowedUpdates, wh.AllowedUpdates)
}

func TestRunTelegramLifecycle(t *testing.T) {
	api := &botAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	cfg := &coreconfig.Config{Telegram: coreconfig.TelegramConfig{
		Token:                  "123:abc",
		RunMode:                coreconfig.RunModeLongpoll,
		LongPollTimeoutSeconds: 1,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	var started, stopped bool
	err := RunTelegram(ctx, RunOptions{
		Config:      cfg,
		APIURL:      srv.URL,
		Offline:     true,
		Middlewares: DefaultMiddlewares(),
		Routes:      []Route{{Endpoint: tele.OnText, Handler: func(tele.Context) error { return nil }}, {}},
		OnStart: func(_ context.Context, rt Runtime) error {
			started = rt.Bot != nil && rt.Dispatcher != nil
			time.AfterFunc(50*time.Millisecond, cancel)
			return nil
		},
		OnStop: func(ctx context.Context, _ Runtime) error {
			stopped = ctx.Err() == nil
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, stopped)
	assert.True(t, api.called("deleteWebhook"))
}

func TestRunTelegramRequiresConfig(t *testing.T) {
	assert.Error(t, RunTelegram(context.Background(), RunOptions{}))
}
