// Package csvfile provides connectivity testing for CSV file data sources.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/autoinsight/insight-engine/pkg/adapters/datasource"
)

// Config contains CSV-specific options.
type Config struct {
	Path      string
	Delimiter rune
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Delimiter: ','}

	if path, ok := config["path"].(string); ok && path != "" {
		cfg.Path = path
	} else {
		return nil, fmt.Errorf("path is required")
	}

	if delim, ok := config["delimiter"].(string); ok && delim != "" {
		cfg.Delimiter = []rune(delim)[0]
	}

	return cfg, nil
}

// Adapter validates a CSV file is readable and well-formed.
type Adapter struct {
	cfg *Config
}

// NewAdapter builds an adapter for the configured file.
func NewAdapter(cfg *Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// TestConnection opens the file and parses its header row.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(a.cfg.Path)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = a.cfg.Delimiter

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if len(header) == 0 {
		return fmt.Errorf("csv header is empty")
	}
	return nil
}

// Close is a no-op; the file handle is scoped to TestConnection.
func (a *Adapter) Close() error {
	return nil
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "csv",
			DisplayName: "CSV File",
			Description: "Validate a local CSV file is readable and parseable",
		},
		Factory: func(ctx context.Context, config map[string]any) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg), nil
		},
	})
}
