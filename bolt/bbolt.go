// Package bolt implements the durable raft log and term state on bbolt.
package bolt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opentracing/opentracing-go"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	entriesBucket = []byte("entries")
	metaBucket    = []byte("meta")
)

// Client is a client for the boltDB data store.
type Client struct {
	Path   string
	db     *bolt.DB
	logger *zap.Logger
}

// NewClient returns an instance of a Client.
func NewClient(log *zap.Logger) *Client {
	return &Client{logger: log}
}

// DB returns the clients DB.
func (c *Client) DB() *bolt.DB {
	return c.db
}

// Open / create boltDB file.
func (c *Client) Open(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Client.Open")
	defer span.Finish()

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return fmt.Errorf("unable to create directory %s: %v", c.Path, err)
	}

	if _, err := os.Stat(c.Path); err != nil && !os.IsNotExist(err) {
		return err
	}

	// Open database file.
	db, err := bolt.Open(c.Path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return fmt.Errorf("unable to open boltdb; is another member already running? %v", err)
	}
	c.db = db

	if err := c.initialize(); err != nil {
		return err
	}

	c.logger.Info("Resources opened", zap.String("path", c.Path))
	return nil
}

// initialize creates Buckets that are missing
func (c *Client) initialize() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("unable to boot boltdb: %v", err)
			}
		}
		return nil
	})
}

// Close the connection to the bolt database
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
