// Package debuglog writes the exchange record of every controller call to a
// tab-separated text file, one line per call.
//
// The file is opened and closed around every write so that a crash in the
// controller never loses lines already captured.
package debuglog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const labelWidth = 15

type File struct {
	path string
}

func New(path string) *File {
	return &File{path: path}
}

// PathFor derives the debug file name from a model file name:
// "runs/turbine.yaml" becomes "runs/turbine_Debug.txt".
func PathFor(modelFile string) string {
	return strings.TrimSuffix(modelFile, filepath.Ext(modelFile)) + "_Debug.txt"
}

func (f *File) Path() string { return f.path }

// WriteHeader truncates the file and writes the slot labels.
func (f *File) WriteHeader(slots int) error {
	labels := make([]string, slots)
	for i := range labels {
		labels[i] = fmt.Sprintf("%-*s", labelWidth, fmt.Sprintf("slot[%d]", i+1))
	}
	return os.WriteFile(f.path, []byte(strings.Join(labels, "\t")+"\n"), 0644)
}

// Append adds one line with every value in %.8e notation.
func (f *File) Append(values []float32) error {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(float64(v), 'e', 8, 64)
	}

	out, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := out.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
