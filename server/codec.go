package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborCodecName is negotiated as application/cbor (unary) and
// application/connect+cbor (streaming).
const cborCodecName = "cbor"

var (
	wireEncMode cbor.EncMode
	wireDecMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	wireEncMode = em

	dm, err := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR dec mode: %v", err))
	}
	wireDecMode = dm
}

// cborCodec is a connect.Codec for plain Go request and response structs.
type cborCodec struct{}

func (cborCodec) Name() string { return cborCodecName }

func (cborCodec) Marshal(v any) ([]byte, error) {
	return wireEncMode.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return wireDecMode.Unmarshal(data, v)
}
