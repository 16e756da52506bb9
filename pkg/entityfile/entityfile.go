// Package entityfile loads import batches from files on disk.
//
// Two formats are understood:
//   - JSON: either an array of entities or an {"Entities": [...]} envelope,
//     using the same field names as the import endpoint.
//   - XLSX: the first sheet, whose header row has a "Key" column. Every other
//     header is a property id, optionally qualified by language as "id@lang".
package entityfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natserract/onboarding/pkg/onboarding"
	"github.com/xuri/excelize/v2"
)

// KeyColumn is the spreadsheet header holding entity keys.
const KeyColumn = "Key"

// ErrUnsupportedFormat is returned by Load for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported entity file format")

// Load reads entities from path, choosing the format by extension.
func Load(path string) ([]*onboarding.DynamicEntity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FromJSON(f)
	case ".xlsx":
		return FromXLSX(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// FromJSON decodes entities from r. Numbers are kept as json.Number so they
// are sent back exactly as written.
func FromJSON(r io.Reader) ([]*onboarding.DynamicEntity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("entity file is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	switch data[0] {
	case '[':
		var entities []*onboarding.DynamicEntity
		if err := dec.Decode(&entities); err != nil {
			return nil, fmt.Errorf("failed to decode entities: %w", err)
		}
		return entities, nil
	case '{':
		var envelope struct {
			Entities []*onboarding.DynamicEntity `json:"Entities"`
		}
		if err := dec.Decode(&envelope); err != nil {
			return nil, fmt.Errorf("failed to decode entities: %w", err)
		}
		if envelope.Entities == nil {
			return nil, errors.New(`entity file has no "Entities" array`)
		}
		return envelope.Entities, nil
	default:
		return nil, errors.New("entity file must hold a JSON array or object")
	}
}

type column struct {
	id       string
	language string
}

// FromXLSX reads entities from the first sheet of the workbook in r. Blank
// cells are skipped and fully blank rows ignored; every value is a string.
func FromXLSX(r io.Reader) ([]*onboarding.DynamicEntity, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	keyIndex, columns, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	entities := []*onboarding.DynamicEntity{}
	for line := 2; rows.Next(); line++ {
		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if isBlank(cells) {
			continue
		}

		key := cellAt(cells, keyIndex)
		if key == "" {
			return nil, fmt.Errorf("row %d: %q is empty", line, KeyColumn)
		}

		entity := &onboarding.DynamicEntity{Key: key, Properties: []onboarding.DynamicProperty{}}
		for i, col := range columns {
			if col.id == "" {
				continue
			}
			value := cellAt(cells, i)
			if value == "" {
				continue
			}
			entity.Properties = append(entity.Properties, onboarding.DynamicProperty{
				ID:       col.id,
				Language: col.language,
				Value:    value,
			})
		}
		entities = append(entities, entity)
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}
	return entities, nil
}

// parseHeader locates the key column and maps the rest to properties. The
// returned slice is indexed by cell position; unused positions have an empty id.
func parseHeader(header []string) (int, []column, error) {
	keyIndex := -1
	columns := make([]column, len(header))
	seen := make(map[column]bool, len(header))

	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if strings.EqualFold(h, KeyColumn) {
			if keyIndex >= 0 {
				return 0, nil, fmt.Errorf("header has more than one %q column", KeyColumn)
			}
			keyIndex = i
			continue
		}

		col := column{id: h}
		if at := strings.LastIndex(h, "@"); at > 0 {
			col = column{id: strings.TrimSpace(h[:at]), language: strings.TrimSpace(h[at+1:])}
		}
		if seen[col] {
			return 0, nil, fmt.Errorf("header repeats property %q", h)
		}
		seen[col] = true
		columns[i] = col
	}

	if keyIndex < 0 {
		return 0, nil, fmt.Errorf("header has no %q column", KeyColumn)
	}
	return keyIndex, columns, nil
}

func cellAt(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Batches validates the whole file's entities for dataSource and then splits
// them with Chunk. Validating before splitting catches keys repeated across
// batch boundaries, which per-batch validation cannot see.
func Batches(dataSource string, entities []*onboarding.DynamicEntity, size int) ([][]*onboarding.DynamicEntity, error) {
	valid, err := onboarding.Validate(dataSource, entities)
	if err != nil {
		return nil, err
	}
	return Chunk(valid, size), nil
}

// Chunk splits entities into consecutive batches of at most size entities.
// A non-positive size yields a single batch.
func Chunk(entities []*onboarding.DynamicEntity, size int) [][]*onboarding.DynamicEntity {
	if len(entities) == 0 {
		return nil
	}
	if size <= 0 || size >= len(entities) {
		return [][]*onboarding.DynamicEntity{entities}
	}

	batches := make([][]*onboarding.DynamicEntity, 0, (len(entities)+size-1)/size)
	for start := 0; start < len(entities); start += size {
		end := min(start+size, len(entities))
		batches = append(batches, entities[start:end:end])
	}
	return batches
}
