package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/san-kum/turbinectl/internal/dynamo"
)

type ExportData struct {
	Run      RunMetadata        `json:"run"`
	Channels []string           `json:"channels"`
	Times    []float64          `json:"times"`
	Rows     [][]float64        `json:"rows"`
	Metrics  map[string]float64 `json:"metrics"`
}

func ExportJSON(w io.Writer, meta RunMetadata, result *dynamo.Result) error {
	data := ExportData{
		Run:      meta,
		Channels: result.Channels,
		Times:    result.Times,
		Rows:     result.Rows,
		Metrics:  meta.Metrics,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// WriteCSV writes a "time" column followed by one column per channel.
func WriteCSV(w io.Writer, result *dynamo.Result) error {
	cw := csv.NewWriter(w)

	header := append([]string{"time"}, result.Channels...)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i, t := range result.Times {
		row[0] = strconv.FormatFloat(t, 'f', 6, 64)
		for j, v := range result.Rows[i] {
			row[j+1] = strconv.FormatFloat(v, 'g', 10, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
