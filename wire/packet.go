package wire

import (
	"bytes"
	"encoding/binary"
	"io"
)

// frameVersion tags the wire format so a future revision can be
// distinguished from this one. There is exactly one version today.
const frameVersion byte = 1

const (
	tagRequest  byte = 0x52 // 'R'
	tagResponse byte = 0x53 // 'S'
)

// RequestPacket is the self-describing, HTTP-shaped request that RestBus
// serializes onto the wire.
type RequestPacket struct {
	Method  string
	URI     string
	Headers Header
	Body    []byte
	Version string
}

// ResponsePacket is the symmetric HTTP-shaped response, with a status line
// in place of a method/URI.
type ResponsePacket struct {
	StatusCode int
	Reason     string
	Headers    Header
	Body       []byte
	Version    string
}

// Serialize encodes r into a self-describing byte sequence.
func (r *RequestPacket) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(frameVersion)
	buf.WriteByte(tagRequest)
	writeString(&buf, r.Method)
	writeString(&buf, r.URI)
	writeString(&buf, r.Version)
	writeHeader(&buf, r.Headers)
	writeBytes(&buf, r.Body)
	return buf.Bytes(), nil
}

// DeserializeRequest decodes a byte sequence produced by
// (*RequestPacket).Serialize.
func DeserializeRequest(data []byte) (*RequestPacket, error) {
	r := bytes.NewReader(data)
	if err := checkFrame(r, tagRequest); err != nil {
		return nil, err
	}
	method, err := readString(r)
	if err != nil {
		return nil, err
	}
	uri, err := readString(r)
	if err != nil {
		return nil, err
	}
	version, err := readString(r)
	if err != nil {
		return nil, err
	}
	headers, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	body, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return &RequestPacket{Method: method, URI: uri, Version: version, Headers: headers, Body: body}, nil
}

// Serialize encodes r into a self-describing byte sequence.
func (r *ResponsePacket) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(frameVersion)
	buf.WriteByte(tagResponse)
	writeUvarint(&buf, uint64(int64(r.StatusCode)))
	writeString(&buf, r.Reason)
	writeString(&buf, r.Version)
	writeHeader(&buf, r.Headers)
	writeBytes(&buf, r.Body)
	return buf.Bytes(), nil
}

// DeserializeResponse decodes a byte sequence produced by
// (*ResponsePacket).Serialize.
func DeserializeResponse(data []byte) (*ResponsePacket, error) {
	r := bytes.NewReader(data)
	if err := checkFrame(r, tagResponse); err != nil {
		return nil, err
	}
	status, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	reason, err := readString(r)
	if err != nil {
		return nil, err
	}
	version, err := readString(r)
	if err != nil {
		return nil, err
	}
	headers, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	body, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return &ResponsePacket{StatusCode: int(status), Reason: reason, Version: version, Headers: headers, Body: body}, nil
}

func checkFrame(r *bytes.Reader, wantTag byte) error {
	version, err := r.ReadByte()
	if err != nil {
		return ErrTruncated
	}
	if version != frameVersion {
		return ErrMalformed
	}
	tag, err := r.ReadByte()
	if err != nil {
		return ErrTruncated
	}
	if tag != wantTag {
		return ErrMalformed
	}
	return nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, ErrTruncated
		}
		return 0, ErrMalformed
	}
	return v, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, ErrTruncated
	}
	return out, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeHeader(buf *bytes.Buffer, h Header) {
	writeUvarint(buf, uint64(len(h)))
	for _, f := range h {
		writeString(buf, f.Name)
		writeString(buf, f.Value)
	}
}

func readHeader(r *bytes.Reader) (Header, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return Header{}, nil
	}
	h := make(Header, 0, n)
	for i := uint64(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		value, err := readString(r)
		if err != nil {
			return nil, err
		}
		h = append(h, HeaderField{Name: name, Value: value})
	}
	return h, nil
}
