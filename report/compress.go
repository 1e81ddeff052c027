package report

import (
	"bytes"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-query-service/types"
)

// ToCompressedReport renders the report and brotli-compresses it for
// file export.
func (f *Formatter) ToCompressedReport(records []types.Record, info *types.QueryInfo) ([]byte, error) {
	text := f.ToDelimitedReport(records, info)

	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, brotli.BestCompression)

	if _, err := writer.Write([]byte(text)); err != nil {
		return nil, types.WrapError(err, "failed to compress report")
	}
	if err := writer.Close(); err != nil {
		return nil, types.WrapError(err, "failed to finish report compression")
	}

	return buf.Bytes(), nil
}

// DecompressReport reverses ToCompressedReport.
func DecompressReport(data []byte) (string, error) {
	reader := brotli.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", types.WrapError(err, "failed to decompress report")
	}

	return buf.String(), nil
}
