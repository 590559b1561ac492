package gossf

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Exporter defines an export interface.
type Exporter interface {
	Write(t int, state mat.Vector, covar mat.Symmetric) error
	Close() error
}

// CSVExporter writes one line per time step: for each state, its value and its ±2σ band.
type CSVExporter struct {
	delimiter string
	hdlr      io.WriteCloser
}

// Close closes the file.
func (e CSVExporter) Close() (err error) {
	err = e.WriteRawLn(fmt.Sprintf("# Closing date (UTC): %s", time.Now().UTC()))
	if err != nil {
		return
	}
	return e.hdlr.Close()
}

// Write writes the state at t to the CSV file. The band is NaN when covar is nil.
func (e CSVExporter) Write(t int, state mat.Vector, covar mat.Symmetric) error {
	r := state.Len()
	vals := make([]string, 1+r*3)
	vals[0] = fmt.Sprintf("%d", t)
	for i := 0; i < r; i++ {
		σ2 := math.NaN()
		if covar != nil {
			σ2 = 2 * math.Sqrt(math.Max(covar.At(i, i), 0))
		}
		x := state.AtVec(i)
		vals[1+3*i] = fmt.Sprintf("%f", x)
		vals[2+3*i] = fmt.Sprintf("%f", x+σ2)
		vals[3+3*i] = fmt.Sprintf("%f", x-σ2)
	}
	return e.WriteRawLn(strings.Join(vals, e.delimiter))
}

// WriteSmoothed writes every step of the smoothed series.
func (e CSVExporter) WriteSmoothed(ss *SmoothedSeries) error {
	for i := 0; i < ss.Len(); i++ {
		t := ss.start + i
		var covar mat.Symmetric
		if c := ss.Covariance(t); c != nil {
			covar = c
		}
		if err := e.Write(t, ss.State(t), covar); err != nil {
			return err
		}
	}
	return nil
}

// WriteRawLn writes a raw line to the CSV file.
func (e CSVExporter) WriteRawLn(s string) error {
	_, err := io.WriteString(e.hdlr, s+"\n")
	return err
}

// NewCSVExporter initializes a new CSV export in dir/filename.
func NewCSVExporter(headers []string, dir, filename string) (*CSVExporter, error) {
	f, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return nil, err
	}
	return NewCSVWriter(headers, f)
}

// NewCSVWriter initializes a new CSV export on w.
func NewCSVWriter(headers []string, w io.WriteCloser) (*CSVExporter, error) {
	delimiter := ","
	hdr := make([]string, 1+len(headers)*3)
	hdr[0] = "t"
	for i, h := range headers {
		hdr[1+3*i] = h
		hdr[2+3*i] = h + "+2s"
		hdr[3+3*i] = h + "-2s"
	}
	e := &CSVExporter{delimiter, w}
	if err := e.WriteRawLn(fmt.Sprintf("# Creation date (UTC): %s\n%s", time.Now().UTC(), strings.Join(hdr, delimiter))); err != nil {
		return nil, err
	}
	return e, nil
}
