package signal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postSignal(t *testing.T, l *Listener, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transaction", strings.NewReader(body))
	rec := httptest.NewRecorder()
	l.handleWebhook(rec, req)
	return rec
}

func TestWebhookAcceptsValidSignal(t *testing.T) {
	var got []Signal
	l := NewListener(":0", func(s Signal) bool {
		got = append(got, s)
		return true
	})

	body := `{"from_name":"whale","tx_hash":"` + validTxHash + `","action_text":"Swapped 1 ETH For tokens"}`
	rec := postSignal(t, l, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "processing")
	require.Len(t, got, 1)
	assert.Equal(t, "whale", got[0].FromName)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	l := NewListener(":0", func(Signal) bool { return true })

	rec := postSignal(t, l, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsInvalidSignal(t *testing.T) {
	l := NewListener(":0", func(Signal) bool { return true })

	rec := postSignal(t, l, `{"from_name":"whale","tx_hash":"nope","action_text":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookReportsBackpressure(t *testing.T) {
	l := NewListener(":0", func(Signal) bool { return false })

	body := `{"from_name":"whale","tx_hash":"` + validTxHash + `","action_text":"Swapped 1 ETH For tokens"}`
	rec := postSignal(t, l, body)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "queue full")
}

func TestWebhookRejectsGet(t *testing.T) {
	l := NewListener(":0", func(Signal) bool { return true })

	req := httptest.NewRequest(http.MethodGet, "/transaction", nil)
	rec := httptest.NewRecorder()
	l.handleWebhook(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
