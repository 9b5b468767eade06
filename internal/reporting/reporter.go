// Package reporting exports alerts to files for other security tooling.
package reporting

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported export formats.
const (
	FormatSARIF = "sarif"
	FormatJSONL = "jsonl"
)

// Reporter writes alerts to an output.
type Reporter interface {
	// Write adds alerts to the report.
	Write(alerts []schemas.AlertRecord) error
	// Close finalizes the report and closes the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format. An empty outputPath or "-" writes to stdout.
func New(format, outputPath, toolVersion string, stdout io.Writer, logger *zap.Logger) (Reporter, error) {
	switch format {
	case FormatSARIF, FormatJSONL:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "-" {
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == FormatSARIF {
		return NewSARIFReporter(writer, toolVersion, logger), nil
	}
	return NewJSONLReporter(writer), nil
}

// JSONLReporter streams one alert per line.
type JSONLReporter struct {
	writer io.WriteCloser
	enc    *jsoniter.Encoder
}

// NewJSONLReporter creates a JSONLReporter.
func NewJSONLReporter(writer io.WriteCloser) *JSONLReporter {
	return &JSONLReporter{writer: writer, enc: json.NewEncoder(writer)}
}

func (r *JSONLReporter) Write(alerts []schemas.AlertRecord) error {
	for _, a := range alerts {
		if err := r.enc.Encode(a); err != nil {
			return fmt.Errorf("failed to encode alert %s: %w", a.ID, err)
		}
	}
	return nil
}

func (r *JSONLReporter) Close() error {
	return r.writer.Close()
}
