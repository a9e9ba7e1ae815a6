package jobs

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("jobs: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("jobs: CBOR decoder initialization failed: " + err.Error())
	}
}

func encode(w io.Writer, v any) error {
	return encMode.NewEncoder(w).Encode(v)
}

func decode(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}
