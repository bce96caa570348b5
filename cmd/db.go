package cmd

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/letsencrypt/borp"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/letsencrypt/batchdml/db"
)

// dialectMap maps an adapter name to the borp dialect for its driver.
var dialectMap = map[string]borp.Dialect{
	"mysql":    borp.MySQLDialect{Engine: "InnoDB", Encoding: "utf8mb4"},
	"postgres": borp.PostgresDialect{},
}

// CanExecute reports whether NewDbMap can open a database for the named
// adapter.
func CanExecute(adapterName string) bool {
	_, ok := dialectMap[adapterName]
	return ok
}

// connectString returns the driver specific connect string for conf.
func connectString(driver string, conf DBConfig) (string, error) {
	if driver == "mysql" {
		return conf.DSN()
	}
	url, err := conf.URL()
	if err != nil {
		return "", fmt.Errorf("reading DB connect string: %w", err)
	}
	return url, nil
}

// NewDbMap opens a connection pool for the named driver ("mysql" or
// "postgres") from conf, checks that it is reachable, registers its pool
// metrics on stats and returns it as a WrappedMap.
func NewDbMap(ctx context.Context, driver string, conf DBConfig, stats prometheus.Registerer) (*db.WrappedMap, error) {
	dialect, ok := dialectMap[driver]
	if !ok {
		return nil, fmt.Errorf("no database driver for %q", driver)
	}
	dsn, err := connectString(driver, conf)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
	sqlDB.SetMaxIdleConns(conf.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(conf.ConnMaxLifetime.Duration)
	sqlDB.SetConnMaxIdleTime(conf.ConnMaxIdleTime.Duration)

	err = sqlDB.PingContext(ctx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	err = db.InitDBMetrics(sqlDB, stats, prometheus.Labels{"dbname": "batchdml", "driver": driver})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("registering DB metrics: %w", err)
	}

	return db.NewWrappedMap(&borp.DbMap{Db: sqlDB, Dialect: dialect}), nil
}
