package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *WhatsAppClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWhatsAppClient(WhatsAppConfig{
		BaseURL:       srv.URL,
		PhoneNumberID: "12345",
		AccessToken:   "secret",
		Timeout:       time.Second,
	})
}

func TestWhatsAppSendTemplate(t *testing.T) {
	var got waRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	})

	id, err := client.Send(context.Background(), Message{
		To:           "573001234567",
		TemplateName: "appointment_reminder",
		LanguageCode: "es",
		Params:       []string{"Ana", "2026-10-18 09:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.1", id)

	assert.Equal(t, "template", got.Type)
	require.NotNil(t, got.Template)
	assert.Equal(t, "appointment_reminder", got.Template.Name)
	assert.Equal(t, "es", got.Template.Language.Code)
	require.Len(t, got.Template.Components, 1)
	assert.Equal(t, "Ana", got.Template.Components[0].Parameters[0].Text)
	assert.Equal(t, "2026-10-18 09:00", got.Template.Components[0].Parameters[1].Text)
}

func TestWhatsAppSendText(t *testing.T) {
	var got waRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.2"}]}`))
	})

	id, err := client.Send(context.Background(), Message{To: "573001234567", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.2", id)
	assert.Equal(t, "text", got.Type)
	require.NotNil(t, got.Text)
	assert.Equal(t, "hello", got.Text.Body)
	assert.Nil(t, got.Template)
}

func TestWhatsAppErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"too many requests", http.StatusTooManyRequests, `{}`, KindRateLimited, true},
		{"throughput code", http.StatusBadRequest, `{"error":{"code":130429}}`, KindRateLimited, true},
		{"undeliverable", http.StatusBadRequest, `{"error":{"code":131026}}`, KindInvalidRecipient, false},
		{"server error", http.StatusBadGateway, `oops`, KindUnavailable, true},
		{"bad template", http.StatusBadRequest, `{"error":{"code":132001}}`, KindRejected, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":190}}`, KindRejected, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Send(context.Background(), Message{To: "573001234567", Body: "x"})
			require.Error(t, err)

			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestWhatsAppTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := NewWhatsAppClient(WhatsAppConfig{BaseURL: srv.URL, PhoneNumberID: "1", Timeout: 50 * time.Millisecond})

	_, err := client.Send(context.Background(), Message{To: "573001234567", Body: "x"})
	pe := Classify(err)
	require.NotNil(t, pe)
	assert.Equal(t, KindTimeout, pe.Kind)
	assert.True(t, pe.Retryable)
}

func TestWhatsAppMissingMessageID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	})
	_, err := client.Send(context.Background(), Message{To: "573001234567", Body: "x"})
	pe := Classify(err)
	assert.Equal(t, KindUnknown, pe.Kind)
	assert.False(t, pe.Retryable)
}

func TestSendEmptyMessageRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})
	_, err := client.Send(context.Background(), Message{To: "573001234567"})
	assert.Equal(t, KindRejected, Classify(err).Kind)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded).Kind)
	assert.Equal(t, KindUnknown, Classify(errors.New("boom")).Kind)
	assert.False(t, Classify(errors.New("boom")).Retryable)

	orig := &Error{Kind: KindRateLimited, Retryable: true}
	assert.Same(t, orig, Classify(orig))
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "hi", Message{Body: "hi"}.Text())
	assert.Equal(t, "[template:t]", Message{TemplateName: "t"}.Text())
	assert.Equal(t, "[template:t] a | b", Message{TemplateName: "t", Params: []string{"a", "b"}}.Text())
}
