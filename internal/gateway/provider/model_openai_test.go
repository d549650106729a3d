package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"btcagent/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIChatClientCall(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"signal\":\"BUY\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIChatClient(ModelCfg{ID: "openai", APIURL: srv.URL + "/v1/chat/completions", APIKey: "sk-test", Model: "gpt-4o"}, ClientOptions{})
	out, err := c.Call(context.Background(), ChatPayload{System: "sys", User: "hi", ExpectJSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"signal":"BUY"}`, out)
	assert.Equal(t, "gpt-4o", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
}

func TestOpenAIChatClientErrorTripsBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	breaker := circuit.New("llm:test", 1, time.Hour)
	breaker.OnStateChange(func(string, circuit.State, circuit.State) {})
	c := NewOpenAIChatClient(ModelCfg{ID: "test", APIURL: srv.URL}, ClientOptions{Breaker: breaker})

	_, err := c.Call(context.Background(), ChatPayload{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")

	_, err = c.Call(context.Background(), ChatPayload{User: "x"})
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestBuildProvidersFromConfig(t *testing.T) {
	ps := BuildProvidersFromConfig([]ModelCfg{
		{ID: "openai", Enabled: true, Model: "gpt-4o"},
		{Provider: "gemini", Model: "gemini-pro", Enabled: true},
		{ID: "off", Enabled: false},
	}, FactoryOptions{Timeout: time.Second})
	assert.Len(t, ps, 2)
	_, err := Lookup(ps, "gemini:gemini-pro")
	assert.NoError(t, err)
	_, err = Lookup(ps, "off")
	assert.Error(t, err)
}
