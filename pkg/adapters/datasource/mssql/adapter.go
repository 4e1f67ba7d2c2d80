// Package mssql provides SQL Server connectivity testing.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/autoinsight/insight-engine/pkg/adapters/datasource"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Encrypt  string
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Port: 1433, Encrypt: "true"}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := config["port"].(float64); ok {
		cfg.Port = int(port)
	} else if port, ok := config["port"].(int); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else if user, ok := config["username"].(string); ok {
		cfg.User = user
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	}

	if encrypt, ok := config["encrypt"].(string); ok && encrypt != "" {
		cfg.Encrypt = encrypt
	}

	return cfg, nil
}

func (c *Config) connectionURL() string {
	query := url.Values{}
	query.Set("database", c.Database)
	query.Set("encrypt", c.Encrypt)

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Adapter provides SQL Server connectivity.
type Adapter struct {
	db *sql.DB
}

// NewAdapter opens a connection against the configured server.
func NewAdapter(cfg *Config) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.connectionURL())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	return &Adapter{db: db}, nil
}

// TestConnection verifies the server is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "sqlserver",
			DisplayName: "SQL Server",
			Description: "Connect to Microsoft SQL Server and Azure SQL",
		},
		Factory: func(ctx context.Context, config map[string]any) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg)
		},
	})
}
