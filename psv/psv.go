// Package psv parses NGDP's "pipe-separated-values" catalog format: a
// typed, tagged header followed by `|`-delimited rows, with optional
// `## key = value` metadata lines.
package psv

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"keg/ngdp"
)

// Column describes one header field: `Name!TYPE:N`.
type Column struct {
	Name string
	Type string
	Size int
}

// Row is one data row, keyed by column name.
type Row map[string]string

// Document is a fully parsed PSV table.
type Document struct {
	Columns []Column
	Rows    []Row

	// Seqn is the value of a "## seqn = N" meta-line, if present.
	Seqn    int64
	HasSeqn bool

	// Meta holds every "## key = value" line verbatim, including seqn.
	Meta map[string]string
}

// ColumnNames returns the header names in declared order.
func (d *Document) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Parse reads a PSV document from r.
func Parse(r io.Reader) (*Document, error) {
	const op = "psv.Parse"
	doc := &Document{Meta: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	headerSeen := false
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "##") {
			if err := parseMeta(doc, strings.TrimPrefix(line, "##")); err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("line %d: %w", lineNo, err))
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			// Plain comment line; carries no structured data.
			continue
		}

		if !headerSeen {
			cols, err := parseHeader(line)
			if err != nil {
				return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("header: %w", err))
			}
			doc.Columns = cols
			headerSeen = true
			continue
		}

		row, err := parseRow(doc.Columns, line)
		if err != nil {
			return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("row %d: %w", lineNo, err))
		}
		doc.Rows = append(doc.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, ngdp.New(ngdp.Malformed, op, err)
	}
	if !headerSeen {
		return nil, ngdp.New(ngdp.Malformed, op, fmt.Errorf("no header line found"))
	}
	return doc, nil
}

func parseMeta(doc *Document, rest string) error {
	parts := strings.SplitN(rest, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed meta line %q", rest)
	}
	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if key == "" {
		return fmt.Errorf("malformed meta line %q", rest)
	}
	doc.Meta[key] = value
	if key == "seqn" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("seqn %q: %w", value, err)
		}
		doc.Seqn = n
		doc.HasSeqn = true
	}
	return nil
}

func parseHeader(line string) ([]Column, error) {
	fields := strings.Split(line, "|")
	cols := make([]Column, 0, len(fields))
	for _, f := range fields {
		nameAndType := strings.SplitN(f, "!", 2)
		if len(nameAndType) != 2 {
			return nil, fmt.Errorf("field %q: missing \"!TYPE:N\"", f)
		}
		typeAndSize := strings.SplitN(nameAndType[1], ":", 2)
		if len(typeAndSize) != 2 {
			return nil, fmt.Errorf("field %q: missing \":N\" size", f)
		}
		size, err := strconv.Atoi(typeAndSize[1])
		if err != nil {
			return nil, fmt.Errorf("field %q: bad size %q: %w", f, typeAndSize[1], err)
		}
		cols = append(cols, Column{
			Name: nameAndType[0],
			Type: typeAndSize[0],
			Size: size,
		})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("empty header")
	}
	return cols, nil
}

func parseRow(cols []Column, line string) (Row, error) {
	values := strings.Split(line, "|")
	if len(values) != len(cols) {
		return nil, fmt.Errorf("got %d fields, want %d", len(values), len(cols))
	}
	row := make(Row, len(cols))
	for i, c := range cols {
		row[c.Name] = values[i]
	}
	return row, nil
}

// Serialize writes doc back out in PSV form. It is the inverse of Parse
// for rows whose cells contain neither "|" nor "\n".
func Serialize(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	if doc.HasSeqn {
		if _, err := fmt.Fprintf(bw, "## seqn = %d\n", doc.Seqn); err != nil {
			return err
		}
	}
	headerParts := make([]string, len(doc.Columns))
	for i, c := range doc.Columns {
		headerParts[i] = fmt.Sprintf("%s!%s:%d", c.Name, c.Type, c.Size)
	}
	if _, err := fmt.Fprintln(bw, strings.Join(headerParts, "|")); err != nil {
		return err
	}
	for _, row := range doc.Rows {
		values := make([]string, len(doc.Columns))
		for i, c := range doc.Columns {
			values[i] = row[c.Name]
		}
		if _, err := fmt.Fprintln(bw, strings.Join(values, "|")); err != nil {
			return err
		}
	}
	return bw.Flush()
}
