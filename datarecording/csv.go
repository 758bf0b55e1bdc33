package datarecording

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/neuron"
)

// WriteCSV writes the samples of a table as "time,<column>" rows.
func WriteCSV(w io.Writer, t *neuron.Table) error {
	buf := bufio.NewWriter(w)

	fmt.Fprintf(buf, "time,%s\n", t.ColumnName())

	times := t.Times()
	for i, v := range t.Vector() {
		fmt.Fprintf(buf, "%.10g,%.10g\n", times[i], v)
	}

	return buf.Flush()
}

// SaveCSV writes the samples of a table to <dir>/<column>.csv, overwriting
// an existing file, and returns the path written.
func SaveCSV(dir string, t *neuron.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}

	path := filepath.Join(dir, t.ColumnName()+".csv")

	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", path)
	}

	if err := WriteCSV(file, t); err != nil {
		file.Close()
		return "", errors.Wrapf(err, "writing %s", path)
	}

	if err := file.Close(); err != nil {
		return "", errors.Wrapf(err, "closing %s", path)
	}

	return path, nil
}
