// FileStore records.
//
// Each line after the header is one JSON record. A set record carries the
// value inline (_v) or packed (_z); a remove record is a tombstone with
// neither. Replaying the file from the top and applying records in order
// yields the current contents.
//
// JSON strings hold only valid UTF-8, so anything else must not reach _k
// or _v: such keys are written base64-encoded to _kb, and such values are
// always packed. Checksums cover the raw key and value either way.
package trove

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// Record operations.
const (
	OpSet    = 1
	OpRemove = 2
)

// MaxKeySize is the maximum length of a key in bytes.
const MaxKeySize = 1024

type record struct {
	Op     int    `json:"op"`
	TS     int64  `json:"_ts"`          // Unix milliseconds
	Key    string `json:"_k"`           // Flat key
	RawKey string `json:"_kb,omitempty"` // Base64 key when _k cannot hold it
	Value  string `json:"_v,omitempty"` // Inline value
	Packed string `json:"_z,omitempty"` // Compressed value
	Sum    string `json:"_c"`           // Checksum, see hash.go
}

// digest returns the checksum input. Fields are length-prefixed so no
// combination of key and value can produce the same input as another.
func (r *record) digest() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Op))
	for _, s := range []string{r.Key, r.Value, r.Packed} {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

func (r *record) seal(alg int) {
	r.Sum = hash(r.digest(), alg)
}

func (r *record) verify(alg int) bool {
	return r.Sum == hash(r.digest(), alg)
}

// value returns the stored value, unpacking it if needed.
func (r *record) value() (string, error) {
	if r.Packed != "" {
		return unpack(r.Packed)
	}
	return r.Value, nil
}

// encode returns the JSON line for r without its newline.
func (r *record) encode() ([]byte, error) {
	if !utf8.ValidString(r.Value) {
		return nil, fmt.Errorf("%w: value is not valid UTF-8", ErrCorruptRecord)
	}
	if utf8.ValidString(r.Key) {
		return json.Marshal(r)
	}
	out := *r
	out.Key = ""
	out.RawKey = base64.StdEncoding.EncodeToString([]byte(r.Key))
	return json.Marshal(&out)
}

// decodeRecord parses one line and checks its structure.
func decodeRecord(data []byte) (*record, error) {
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrCorruptRecord
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, ErrCorruptRecord
	}
	if r.Op != OpSet && r.Op != OpRemove {
		return nil, ErrCorruptRecord
	}
	if r.RawKey != "" {
		key, err := base64.StdEncoding.DecodeString(r.RawKey)
		if err != nil || r.Key != "" {
			return nil, ErrCorruptRecord
		}
		r.Key = string(key)
		r.RawKey = ""
	}
	return &r, nil
}

// now returns the current time in unix milliseconds.
func now() int64 {
	return time.Now().UnixMilli()
}
