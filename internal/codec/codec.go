// Package codec holds the two wire formats the operation envelope can travel
// in. JSON is the default; CBOR is negotiated by content type.
package codec

import (
	"encoding/json"
	"mime"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// encMode uses Core Deterministic Encoding so equal values always produce
// identical bytes. Times travel as RFC 3339 strings to keep sub-second
// precision.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// ForContentType picks the codec for a Content-Type or Accept header value,
// falling back to JSON.
func ForContentType(header string) Codec {
	if header == "" {
		return JSON
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return JSON
	}
	if mediaType == ContentTypeCBOR {
		return CBOR
	}
	return JSON
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct{}

func (cborCodec) ContentType() string { return ContentTypeCBOR }

func (cborCodec) Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

func (cborCodec) Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// MarshalCBOR and UnmarshalCBOR expose the package's CBOR configuration to
// types that implement cbor.Marshaler themselves.
func MarshalCBOR(v any) ([]byte, error) { return encMode.Marshal(v) }

func UnmarshalCBOR(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// Raw holds an undecoded value in whichever format it arrived in. It lets an
// envelope be decoded before the codec-specific payload type is known.
type Raw []byte

func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *Raw) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

func (r Raw) MarshalCBOR() ([]byte, error) {
	if len(r) == 0 {
		return []byte{0xf6}, nil
	}
	return r, nil
}

func (r *Raw) UnmarshalCBOR(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// IsNull reports whether r is empty or an encoded null in either format.
func (r Raw) IsNull() bool {
	if len(r) == 0 {
		return true
	}
	if len(r) == 1 && (r[0] == 0xf6 || r[0] == 0xf7) {
		return true
	}
	return string(r) == "null"
}
