package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/yukithm/json2csv"
	"gopkg.in/yaml.v3"
)

// Writer renders a table in one output format.
type Writer interface {
	Write(t *Table, w io.Writer) error
	Extension() string
}

// NewWriter creates a writer for the given format
func NewWriter(format string) (Writer, error) {
	switch format {
	case "", "table", "text":
		return &TextWriter{}, nil
	case "csv":
		return &CSVWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "jsonl":
		return &JSONLWriter{}, nil
	case "yaml", "yml":
		return &YAMLWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: table, csv, json, jsonl, yaml)", format)
	}
}

// TextWriter renders an aligned text table.
type TextWriter struct{}

func (e *TextWriter) Write(t *Table, w io.Writer) error {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Columns)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)

	for _, r := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, v := range t.Values(r) {
			cells[i] = Cell(v)
		}
		tw.Append(cells)
	}

	tw.Render()
	return nil
}

func (e *TextWriter) Extension() string { return "txt" }

// CSVWriter flattens nested cells into dot-notation columns.
type CSVWriter struct{}

func (e *CSVWriter) Write(t *Table, w io.Writer) error {
	if t.Len() == 0 {
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Columns); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}

	records := make([]map[string]interface{}, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make(map[string]interface{}, len(t.Columns))
		for _, c := range t.Columns {
			rec[c] = r[c]
		}
		records = append(records, rec)
	}

	kvs, err := json2csv.JSON2CSV(records)
	if err != nil {
		return fmt.Errorf("convert table to CSV: %w", err)
	}

	cw := json2csv.NewCSVWriter(w)
	cw.HeaderStyle = json2csv.DotNotationStyle
	if err := cw.WriteCSV(kvs); err != nil {
		return fmt.Errorf("write CSV: %w", err)
	}
	return nil
}

func (e *CSVWriter) Extension() string { return "csv" }

// JSONWriter writes a pretty-printed array of records in column order.
type JSONWriter struct{}

func (e *JSONWriter) Write(t *Table, w io.Writer) error {
	var compact bytes.Buffer
	compact.WriteByte('[')
	for i, r := range t.Rows {
		if i > 0 {
			compact.WriteByte(',')
		}
		if err := encodeRecord(&compact, t, r); err != nil {
			return err
		}
	}
	compact.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

func (e *JSONWriter) Extension() string { return "json" }

// JSONLWriter writes one record per line.
type JSONLWriter struct{}

func (e *JSONLWriter) Write(t *Table, w io.Writer) error {
	var buf bytes.Buffer
	for _, r := range t.Rows {
		buf.Reset()
		if err := encodeRecord(&buf, t, r); err != nil {
			return err
		}
		buf.WriteByte('\n')
		if _, err := buf.WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (e *JSONLWriter) Extension() string { return "jsonl" }

// YAMLWriter writes a sequence of mappings in column order.
type YAMLWriter struct{}

func (e *YAMLWriter) Write(t *Table, w io.Writer) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range t.Rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for _, c := range t.Columns {
			val := &yaml.Node{}
			if err := val.Encode(r[c]); err != nil {
				return fmt.Errorf("encode column %q: %w", c, err)
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c}, val)
		}
		seq.Content = append(seq.Content, m)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(seq)
}

func (e *YAMLWriter) Extension() string { return "yaml" }

func encodeRecord(buf *bytes.Buffer, t *Table, r Row) error {
	buf.WriteByte('{')
	for i, c := range t.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return err
		}
		v, err := json.Marshal(r[c])
		if err != nil {
			return fmt.Errorf("encode column %q: %w", c, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return nil
}
