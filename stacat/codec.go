package stacat

import (
	"bufio"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLineSize bounds one JSONL record or text asset line.
const maxLineSize = 10 * 1024 * 1024

// jsonlCodec writes one JSON document per line.
type jsonlCodec struct{}

// NewJSONLCodec creates a JSON Lines codec. Records can be any value
// encodable as JSON; geometries should be converted with Table.Records
// first.
func NewJSONLCodec() Codec {
	return &jsonlCodec{}
}

func (j *jsonlCodec) Name() string {
	return "jsonl"
}

func (j *jsonlCodec) Encode(w io.Writer, records []any) error {
	enc := jsonCodec.NewEncoder(w)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

func (j *jsonlCodec) Decode(r io.Reader) ([]any, error) {
	var records []any
	err := scanLines(r, func(line []byte) error {
		if len(line) == 0 {
			return nil
		}
		var record any
		if err := jsonCodec.Unmarshal(line, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scanLines calls fn for every line of r, without the line terminator.
func scanLines(r io.Reader, fn func([]byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
