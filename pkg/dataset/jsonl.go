package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

// ReadJSONL decodes conversation records, one JSON object per line.
// Blank lines are skipped. A limit of zero or less reads every record.
func ReadJSONL(r io.Reader, limit int) ([]ConversationRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []ConversationRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if limit > 0 && len(records) >= limit {
			break
		}

		var rec ConversationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	return records, nil
}

// LoadFile reads up to limit records from the JSONL file at path.
func LoadFile(path string, limit int) ([]ConversationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := ReadJSONL(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// WriteJSONL writes examples as JSON lines.
func WriteJSONL(w io.Writer, examples []SelectedExample) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range examples {
		if err := enc.Encode(&examples[i]); err != nil {
			return fmt.Errorf("encoding example %d: %w", i, err)
		}
	}
	return nil
}
