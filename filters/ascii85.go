package filters

import (
	"bytes"
	"encoding/ascii85"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/scribd/keynote/object"
)

// ASCII85Decoder handles /ASCII85Decode payloads, including the z group
// shorthand and the ~> terminator.
type ASCII85Decoder struct{}

func (*ASCII85Decoder) Name() object.Name { return "ASCII85Decode" }

func (*ASCII85Decoder) Decode(data []byte, params *object.Dict) ([]byte, error) {
	// Whitespace is insignificant and the optional <~ prefix and ~>
	// terminator are not part of the alphabet.
	cleaned := make([]byte, 0, len(data))
	for _, c := range data {
		switch c {
		case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
			continue
		}
		cleaned = append(cleaned, c)
	}
	cleaned = bytes.TrimPrefix(cleaned, []byte("<~"))
	if i := bytes.Index(cleaned, []byte("~>")); i >= 0 {
		cleaned = cleaned[:i]
	}
	dec := ascii85.NewDecoder(bytes.NewReader(cleaned))
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "ascii85: decode")
	}
	return out, nil
}
