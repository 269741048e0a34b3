package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// LoadExcludeList reads identifiers from the first column of a header-less
// CSV file. A missing file is an empty list.
func LoadExcludeList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: open exclude list: %w", err)
	}
	defer f.Close()

	ids, err := readExcludeList(f)
	if err != nil {
		return nil, fmt.Errorf("ingest: read exclude list %s: %w", path, err)
	}
	return ids, nil
}

func readExcludeList(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var ids []string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		if id := strings.TrimSpace(row[0]); id != "" {
			ids = append(ids, id)
		}
	}
}
