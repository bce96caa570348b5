package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/letsencrypt/batchdml/config"
)

// DBConfig defines how to connect to a database. The connect string may be
// stored in a file separate from the config, because it can contain a password,
// which we want to keep out of configs.
type DBConfig struct {
	// DBConnect is a go-sql-driver/mysql DSN, e.g.
	// "batch@tcp(localhost:3306)/inventory", or a lib/pq connect string such
	// as "host=localhost dbname=inventory sslmode=disable" when the
	// postgres adapter is selected.
	DBConnect string `yaml:"dbConnect" validate:"required_without=DBConnectFile"`

	// A file containing a DSN for the DB.
	DBConnectFile string `yaml:"dbConnectFile" validate:"required_without=DBConnect"`

	// MaxOpenConns sets the maximum number of open connections to the
	// database. If MaxIdleConns is greater than 0 and MaxOpenConns is
	// less than MaxIdleConns, then MaxIdleConns will be reduced to
	// match the new MaxOpenConns limit. If n < 0, then there is no
	// limit on the number of open connections.
	MaxOpenConns int `yaml:"maxOpenConns" validate:"min=-1"`

	// MaxIdleConns sets the maximum number of connections in the idle
	// connection pool. If MaxOpenConns is greater than 0 but less than
	// MaxIdleConns, then MaxIdleConns will be reduced to match the
	// MaxOpenConns limit. If n < 0, no idle connections are retained.
	MaxIdleConns int `yaml:"maxIdleConns" validate:"min=-1"`

	// ConnMaxLifetime sets the maximum amount of time a connection may
	// be reused. Expired connections may be closed lazily before reuse.
	// If d < 0, connections are not closed due to a connection's age.
	ConnMaxLifetime config.Duration `yaml:"connMaxLifetime" validate:"-"`

	// ConnMaxIdleTime sets the maximum amount of time a connection may
	// be idle. Expired connections may be closed lazily before reuse.
	// If d < 0, connections are not closed due to a connection's idle
	// time.
	ConnMaxIdleTime config.Duration `yaml:"connMaxIdleTime" validate:"-"`

	// ReadTimeout and WriteTimeout, when set, override the I/O timeouts
	// in the DSN.
	ReadTimeout  config.Duration `yaml:"readTimeout" validate:"-"`
	WriteTimeout config.Duration `yaml:"writeTimeout" validate:"-"`
}

// URL returns the DSN represented by this DBConfig object, either loading it
// from disk or returning DBConnect. Leading and trailing whitespace is
// stripped.
func (d *DBConfig) URL() (string, error) {
	if d.DBConnectFile != "" {
		url, err := os.ReadFile(d.DBConnectFile)
		return strings.TrimSpace(string(url)), err
	}
	return d.DBConnect, nil
}

// DSN returns the normalised MySQL DSN for this DBConfig. Times are always
// parsed into time.Time and arguments are never interpolated client side, so
// every statement reaches the server with its placeholders intact.
func (d *DBConfig) DSN() (string, error) {
	url, err := d.URL()
	if err != nil {
		return "", fmt.Errorf("reading DB connect string: %w", err)
	}
	conf, err := mysql.ParseDSN(url)
	if err != nil {
		return "", fmt.Errorf("parsing DSN: %w", err)
	}
	conf.ParseTime = true
	conf.InterpolateParams = false
	if d.ReadTimeout.Duration > 0 {
		conf.ReadTimeout = d.ReadTimeout.Duration
	}
	if d.WriteTimeout.Duration > 0 {
		conf.WriteTimeout = d.WriteTimeout.Duration
	}
	return conf.FormatDSN(), nil
}

// OpenTelemetryConfig configures tracing via OpenTelemetry.
// To enable tracing, set a nonzero SampleRatio and configure an Endpoint.
type OpenTelemetryConfig struct {
	// Endpoint to connect to with the OTLP protocol over gRPC.
	// It should be of the form "localhost:4317"
	//
	// It always connects over plaintext, and so is only intended to connect
	// to a local OpenTelemetry collector. This should not be used over an
	// insecure network.
	Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`

	// SampleRatio is the ratio of new traces to head sample.
	// This only affects new traces without a parent with its own sampling
	// decision, and otherwise use the parent's sampling decision.
	//
	// Set to something between 0 and 1, where 1 is sampling all traces.
	SampleRatio float64 `yaml:"sampleRatio" validate:"min=0,max=1"`
}
