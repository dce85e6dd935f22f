package faketopology

import "github.com/feik/RestBus/wire"

// encodeEchoResponse builds a 200 OK response carrying the request body
// verbatim as its own body, ignoring any malformed request bytes (a
// request that fails to deserialize is echoed back empty).
func encodeEchoResponse(requestBody []byte) []byte {
	req, err := wire.DeserializeRequest(requestBody)
	body := []byte(nil)
	if err == nil {
		body = req.Body
	}
	resp := &wire.ResponsePacket{
		StatusCode: 200,
		Reason:     "OK",
		Headers:    wire.Header{},
		Body:       body,
		Version:    "HTTP/1.1",
	}
	data, _ := resp.Serialize()
	return data
}
