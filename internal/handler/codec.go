package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const maxBodyBytes = 1 << 20

// requestError is a malformed or incomplete request body.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

func invalidRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// decodeObject reads a JSON object from the request body, calling fn for
// every key. Unknown keys must be skipped by fn.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	return decodeWith(d, fn)
}

func decodeWith(d *jx.Decoder, fn func(d *jx.Decoder, key string) error) error {
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return err
		}
		return invalidRequest("malformed JSON body: %v", err)
	}
	return nil
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func intField(e *jx.Encoder, name string, v int64) {
	e.FieldStart(name)
	e.Int64(v)
}

func boolField(e *jx.Encoder, name string, v bool) {
	e.FieldStart(name)
	e.Bool(v)
}

func timeField(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		return
	}
	strField(e, name, t.UTC().Format(time.RFC3339Nano))
}
