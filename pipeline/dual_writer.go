package pipeline

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/shopcrawl/models"
)

// MultiWriter fans every batch out to several writers, for example CSV and
// JSONL side by side.
type MultiWriter struct {
	writers []OutputWriter
}

// NewMultiWriter combines writers. It takes ownership of them.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// NewDualWriter creates CSV and JSONL outputs written in lockstep.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create json writer: %w", err)
	}

	return NewMultiWriter(csvWriter, jsonWriter), nil
}

// Write stops at the first failing writer.
func (mw *MultiWriter) Write(products []*models.ProductRecord) error {
	for _, w := range mw.writers {
		if err := w.Write(products); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
