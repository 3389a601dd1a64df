package stacat

import (
	"bytes"
	"context"
	"strings"
)

// textBackend splits text files into lines.
type textBackend struct{}

// NewTextBackend returns the built-in backend for StrategyText.
func NewTextBackend() Backend { return textBackend{} }

func (textBackend) Container() Container { return ContainerText }

func (textBackend) Load(_ context.Context, blob Blob, _ LoadArgs) (*Data, error) {
	var lines []string
	err := scanLines(bytes.NewReader(blob.Body), func(line []byte) error {
		lines = append(lines, strings.TrimSuffix(string(line), "\r"))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Data{Text: lines}, nil
}
