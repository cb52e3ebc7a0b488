package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/formrelay/core/conversation"
)

func TestRenderText(t *testing.T) {
	msg := Render(conversation.Reply{Text: "hello"})
	assert.Equal(t, OutboundMessage{Text: "hello"}, msg)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello"}`, string(data))
}

func TestRenderButtonTemplate(t *testing.T) {
	msg := Render(conversation.Reply{
		Text:    "Favourite drink",
		Buttons: []conversation.Button{{Title: "Tea", Payload: "Tea"}, {Title: "Latte", Payload: "Latte"}},
	})
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
	  "attachment": {
	    "type": "template",
	    "payload": {
	      "template_type": "button",
	      "text": "Favourite drink",
	      "buttons": [
	        {"type": "postback", "title": "Tea", "payload": "Tea"},
	        {"type": "postback", "title": "Latte", "payload": "Latte"}
	      ]
	    }
	  }
	}`, string(data))
}

func TestClientSend(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/me/messages", r.URL.Path)
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"recipient_id":"u1","message_id":"m1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v19.0", "page-token", srv.Client())
	resp, err := c.Send(context.Background(), "u1", OutboundMessage{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.MessageID)
	assert.Equal(t, "u1", got.Recipient.ID)
	assert.Equal(t, "hi", got.Message.Text)
}

func TestClientSendDecodesGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190,"fbtrace_id":"abc"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad", srv.Client()).Send(context.Background(), "u1", OutboundMessage{Text: "hi"})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, "OAuthException", apiErr.Type)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
}

func TestClientSendNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", srv.Client()).Send(context.Background(), "u1", OutboundMessage{Text: "hi"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
	assert.Zero(t, apiErr.Code)
}
