// Package mongodb provides MongoDB connectivity testing.
package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/autoinsight/insight-engine/pkg/adapters/datasource"
)

// Config contains MongoDB-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SRV      bool
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{Port: 27017}

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

	if srv, ok := config["srv"].(bool); ok {
		cfg.SRV = srv
	}

	return cfg, nil
}

func (c *Config) uri() string {
	scheme := "mongodb"
	host := fmt.Sprintf("%s:%d", c.Host, c.Port)
	if c.SRV {
		// SRV records carry the port.
		scheme = "mongodb+srv"
		host = c.Host
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Adapter provides MongoDB connectivity.
type Adapter struct {
	client *mongo.Client
}

// NewAdapter connects to the configured cluster.
func NewAdapter(ctx context.Context, cfg *Config) (*Adapter, error) {
	opts := options.Client().
		ApplyURI(cfg.uri()).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	return &Adapter{client: client}, nil
}

// TestConnection verifies a primary node is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (a *Adapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "mongodb",
			DisplayName: "MongoDB",
			Description: "Connect to MongoDB replica sets and Atlas clusters",
		},
		Factory: func(ctx context.Context, config map[string]any) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg)
		},
	})
}
