package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"homewatch/models"
)

// CSVWriter exports stored listings to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	// Write header
	if err := w.Write([]string{
		"address", "city", "state", "zip_code", "price", "bedrooms", "bathrooms", "square_feet",
		"property_type", "url", "source", "notification_status", "first_seen",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends one row per listing.
func (c *CSVWriter) Write(listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		sqft := ""
		if l.SquareFeet != nil {
			sqft = strconv.Itoa(*l.SquareFeet)
		}
		row := []string{
			l.Address,
			l.City,
			l.State,
			l.ZipCode,
			strconv.FormatFloat(l.Price, 'f', 2, 64),
			strconv.Itoa(l.Bedrooms),
			strconv.FormatFloat(l.Bathrooms, 'f', -1, 64),
			sqft,
			string(l.PropertyType),
			l.URL,
			l.Source,
			string(l.NotificationStatus),
			l.CreatedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
