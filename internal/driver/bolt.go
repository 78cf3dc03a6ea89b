package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/kgfuse/internal/config"
	"github.com/agenthands/kgfuse/internal/logger"
)

// BoltDriver talks to Neo4j 5 or Memgraph over Bolt.
type BoltDriver struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewBoltDriver(ctx context.Context, cfg config.GraphConfig, log *logger.Logger) (*BoltDriver, error) {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.QueryTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("init bolt driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify connectivity to %s: %w", cfg.URI, err)
	}

	log.Info("connected to graph store", "uri", cfg.URI, "database", cfg.Database)
	return &BoltDriver{Driver: driver, Database: cfg.Database, log: log.With("client", "BoltDriver")}, nil
}

func (d *BoltDriver) Close(ctx context.Context) error {
	if d == nil || d.Driver == nil {
		return nil
	}
	err := d.Driver.Close(ctx)
	d.Driver = nil
	return err
}

func (d *BoltDriver) VerifyConnectivity(ctx context.Context) error {
	if d.Driver == nil {
		return fmt.Errorf("driver closed")
	}
	return d.Driver.VerifyConnectivity(ctx)
}

func (d *BoltDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

// BuildIndices creates the constraints the merge-on-key writes rely on.
// Failures are logged and skipped: Memgraph and older Neo4j versions reject
// some of the syntax, and the statements are no-ops when already applied.
func (d *BoltDriver) BuildIndices(ctx context.Context) error {
	for _, q := range SchemaQueries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			d.log.Warn("failed to apply schema statement", "query", q, "error", err)
		}
	}
	return nil
}
