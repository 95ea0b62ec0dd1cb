package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/scribd/keynote/object"
)

// FlateDecoder handles /FlateDecode payloads. The zlib wrapper is tried
// first; payloads written without the two-byte header fall back to raw
// deflate. PNG row predictors are reversed when /DecodeParms asks for them.
type FlateDecoder struct{}

func (*FlateDecoder) Name() object.Name { return "FlateDecode" }

func (*FlateDecoder) Decode(data []byte, params *object.Dict) ([]byte, error) {
	out, err := inflate(data)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return out, nil
	}
	predictor, ok := params.GetInt("Predictor")
	if !ok || predictor == 1 {
		return out, nil
	}
	if predictor < 10 {
		return nil, pkgerrors.Errorf("flate: predictor %d is not supported", predictor)
	}
	columns := int64(1)
	if c, ok := params.GetInt("Columns"); ok {
		columns = c
	}
	return unpredictPNG(out, int(columns))
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		out, rerr := io.ReadAll(zr)
		zr.Close()
		if rerr == nil {
			return out, nil
		}
		err = rerr
	}
	// Some producers emit raw deflate without the zlib header.
	fr := flate.NewReader(bytes.NewReader(data))
	out, ferr := io.ReadAll(fr)
	fr.Close()
	if ferr != nil {
		return nil, pkgerrors.Wrap(err, "flate: decompress")
	}
	return out, nil
}

// unpredictPNG reverses the per-row PNG filters. Each row is columns data
// bytes preceded by one tag byte.
func unpredictPNG(data []byte, columns int) ([]byte, error) {
	if columns <= 0 {
		return nil, pkgerrors.Errorf("flate: invalid predictor columns %d", columns)
	}
	rowSize := columns + 1
	if len(data)%rowSize != 0 {
		return nil, pkgerrors.Errorf("flate: predicted data length %d is not a multiple of row size %d", len(data), rowSize)
	}
	rows := len(data) / rowSize
	out := make([]byte, 0, rows*columns)
	prev := make([]byte, columns)
	row := make([]byte, columns)
	for r := 0; r < rows; r++ {
		tag := data[r*rowSize]
		copy(row, data[r*rowSize+1:(r+1)*rowSize])
		switch tag {
		case 0: // None
		case 1: // Sub
			for i := 1; i < columns; i++ {
				row[i] += row[i-1]
			}
		case 2: // Up
			for i := 0; i < columns; i++ {
				row[i] += prev[i]
			}
		default:
			return nil, pkgerrors.Errorf("flate: unsupported PNG predictor tag %d", tag)
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}
