package store

import (
	"bytes"
	"encoding/gob"
)

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, out interface{}) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(out)
}
