package mcl

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// DecodePayload unwraps a transport payload into JSON bytes. Payloads are
// either raw JSON (starting with '{') or zlib-compressed JSON, the two
// encodings the map and scan publishers emit.
func DecodePayload(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload: %w", ErrSensorDataInvalid)
	}
	if data[0] == '{' {
		return data, nil
	}
	jsonBytes, err := inflateZlib(data)
	if err != nil {
		return nil, fmt.Errorf("payload is neither JSON nor zlib-compressed JSON: %w", ErrSensorDataInvalid)
	}
	return jsonBytes, nil
}

// inflateZlib decompresses a zlib stream.
func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflating zlib stream: %w", err)
	}
	return out, nil
}

// DeflateZlib compresses bytes with zlib. Used by the publisher and by
// tests exercising the compressed payload path.
func DeflateZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflating payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing zlib writer: %w", err)
	}
	return buf.Bytes(), nil
}
