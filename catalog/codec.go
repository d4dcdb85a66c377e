package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// -----------------------------------------------------------------------------
// JSONL Codec
// -----------------------------------------------------------------------------

// jsonlCodec implements Codec using JSON Lines format.
type jsonlCodec struct{}

// NewJSONLCodec creates a JSONL (JSON Lines) codec.
//
// Each row is serialized as a single line of JSON.
func NewJSONLCodec() Codec {
	return &jsonlCodec{}
}

func (j *jsonlCodec) Name() string {
	return "jsonl"
}

func (j *jsonlCodec) Encode(w io.Writer, rows []Row) error {
	enc := jsonCodec.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func (j *jsonlCodec) Decode(r io.Reader) ([]Row, error) {
	var rows []Row
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row Row
		if err := jsonCodec.Unmarshal(line, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// -----------------------------------------------------------------------------
// Parquet Codec
// -----------------------------------------------------------------------------

// parquetCodec implements Codec using Apache Parquet with snappy-compressed
// column chunks.
type parquetCodec struct{}

// NewParquetCodec creates a Parquet codec.
//
// The schema derives from the Row struct tags; files written here read back
// with any Parquet tooling.
func NewParquetCodec() Codec {
	return &parquetCodec{}
}

func (p *parquetCodec) Name() string {
	return "parquet"
}

func (p *parquetCodec) Encode(w io.Writer, rows []Row) error {
	writer := parquet.NewGenericWriter[Row](w, parquet.Compression(&parquet.Snappy))
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			_ = writer.Close()
			return fmt.Errorf("parquet: write rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}
	return nil
}

func (p *parquetCodec) Decode(r io.Reader) ([]Row, error) {
	// Parquet needs random access; index streams are small enough to buffer.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	rows, err := parquet.Read[Row](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parquet: read rows: %w", err)
	}
	return rows, nil
}
