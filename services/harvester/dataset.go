package harvester

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadDataset reads the persisted dataset. A missing file is not an
// error: it yields the zero Dataset so first runs and resumed runs take
// the same code path.
func LoadDataset(path string) (Dataset, error) {
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Dataset{}, nil
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}

	var ds Dataset
	err = json.Unmarshal(body, &ds)
	if err != nil {
		return Dataset{}, fmt.Errorf("decoding dataset %s: %w", path, err)
	}
	return ds, nil
}

// WriteDataset persists the dataset atomically: write to a temp file in
// the target directory, then rename. A crash mid-write never leaves a
// truncated dataset behind.
func WriteDataset(path string, ds Dataset) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp dataset: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	err = enc.Encode(ds)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("encoding dataset: %w", err)
	}
	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("flushing dataset: %w", err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fmt.Errorf("replacing dataset: %w", err)
	}
	return nil
}
