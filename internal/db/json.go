package db

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// DecodeJSON unmarshals data into v, keeping numbers as json.Number so
// integers beyond 2^53 survive a round trip through a store. Like
// json.Unmarshal it rejects trailing data.
func DecodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("invalid character after top-level value")
	}
	return nil
}
