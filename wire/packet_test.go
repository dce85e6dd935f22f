package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestPacketRoundTrip(t *testing.T) {
	t.Run("full request survives serialize/deserialize", func(t *testing.T) {
		req := &RequestPacket{
			Method:  "POST",
			URI:     "/orders/42",
			Version: "HTTP/1.1",
			Body:    []byte(`{"qty":3}`),
		}
		req.Headers.Add("Content-Type", "application/json")
		req.Headers.Add("X-Trace-Id", "abc")
		req.Headers.Add("X-Trace-Id", "def")

		data, err := req.Serialize()
		require.NoError(t, err)

		got, err := DeserializeRequest(data)
		require.NoError(t, err)
		assert.Equal(t, req.Method, got.Method)
		assert.Equal(t, req.URI, got.URI)
		assert.Equal(t, req.Version, got.Version)
		assert.Equal(t, req.Body, got.Body)
		assert.Equal(t, []string{"abc", "def"}, got.Headers.Values("X-Trace-Id"))
	})

	t.Run("empty body and no headers round trip", func(t *testing.T) {
		req := &RequestPacket{Method: "GET", URI: "/health", Version: "HTTP/1.1"}
		data, err := req.Serialize()
		require.NoError(t, err)

		got, err := DeserializeRequest(data)
		require.NoError(t, err)
		assert.Equal(t, "GET", got.Method)
		assert.Empty(t, got.Body)
		assert.Empty(t, got.Headers)
	})

	t.Run("truncated data fails to deserialize", func(t *testing.T) {
		req := &RequestPacket{Method: "GET", URI: "/x", Version: "HTTP/1.1"}
		data, err := req.Serialize()
		require.NoError(t, err)

		_, err = DeserializeRequest(data[:len(data)-3])
		assert.Error(t, err)
	})

	t.Run("response tag rejected as request", func(t *testing.T) {
		resp := &ResponsePacket{StatusCode: 200, Reason: "OK", Version: "HTTP/1.1"}
		data, err := resp.Serialize()
		require.NoError(t, err)

		_, err = DeserializeRequest(data)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestResponsePacketRoundTrip(t *testing.T) {
	t.Run("full response survives serialize/deserialize", func(t *testing.T) {
		resp := &ResponsePacket{
			StatusCode: 404,
			Reason:     "Not Found",
			Version:    "HTTP/1.1",
			Body:       []byte("no such order"),
		}
		resp.Headers.Set("Content-Length", "13")

		data, err := resp.Serialize()
		require.NoError(t, err)

		got, err := DeserializeResponse(data)
		require.NoError(t, err)
		assert.Equal(t, 404, got.StatusCode)
		assert.Equal(t, "Not Found", got.Reason)
		assert.Equal(t, resp.Body, got.Body)
		v, ok := got.Headers.Get("content-length")
		assert.True(t, ok)
		assert.Equal(t, "13", v)
	})
}

func TestHeaderSet(t *testing.T) {
	t.Run("Set replaces every existing field of the name", func(t *testing.T) {
		h := Header{{Name: "X-A", Value: "1"}, {Name: "X-A", Value: "2"}, {Name: "X-B", Value: "3"}}
		h.Set("x-a", "final")
		assert.Equal(t, []string{"final"}, h.Values("X-A"))
		assert.Equal(t, []string{"3"}, h.Values("X-B"))
	})

	t.Run("Set on absent name appends", func(t *testing.T) {
		var h Header
		h.Set("X-New", "v")
		val, ok := h.Get("X-New")
		assert.True(t, ok)
		assert.Equal(t, "v", val)
	})
}
