package store

import "go.uber.org/zap"

type options struct {
	logger *zap.Logger
	dsn    string
	nodeID int64
}

var defaultOptions = options{
	logger: zap.NewNop(),
	nodeID: 1,
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithDSN sets the MySQL connection string. Timestamp columns are scanned
// into time.Time, so the DSN needs parseTime=true.
func WithDSN(dsn string) Option {
	return func(opts *options) {
		opts.dsn = dsn
	}
}

// WithNodeID sets the snowflake node used to mint library record ids.
// Deployments derive it from the instance address via the generator
// package.
func WithNodeID(id int64) Option {
	return func(opts *options) {
		opts.nodeID = id
	}
}
