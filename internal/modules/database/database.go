package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

const Type = "database"

const (
	DriverMySQL     = "mysql"
	DriverPostgres  = "postgresql"
	DriverSQLite    = "sqlite"
	DriverSnowflake = "snowflake"
)

type Settings struct {
	Connection       Connection `yaml:"connection"`
	Query            string     `yaml:"query"`
	LowercaseColumns bool       `yaml:"lowercase_columns"`
}

type Connection struct {
	Driver      string            `yaml:"driver"`
	Host        string            `yaml:"host"`
	HostEnv     string            `yaml:"host_env"`
	Port        int               `yaml:"port"`
	Database    string            `yaml:"database"`
	UsernameEnv string            `yaml:"username_env"`
	PasswordEnv string            `yaml:"password_env"`
	SSLMode     string            `yaml:"sslmode"`
	Params      map[string]string `yaml:"params"`

	// Snowflake
	Account    string `yaml:"account"`
	AccountEnv string `yaml:"account_env"`
	Warehouse  string `yaml:"warehouse"`
	Schema     string `yaml:"schema"`
	Role       string `yaml:"role"`

	MaxOpenConns int `yaml:"max_open_conns"`
}

func (s *Settings) setDefaults() {
	c := &s.Connection
	c.Driver = strings.ToLower(c.Driver)
	if c.Driver == "postgres" {
		c.Driver = DriverPostgres
	}
	if c.Driver == DriverSQLite {
		return
	}
	if c.UsernameEnv == "" {
		c.UsernameEnv = "DB_USER"
	}
	if c.PasswordEnv == "" {
		c.PasswordEnv = "DB_PASSWORD"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 2
	}
	if c.Driver == DriverSnowflake {
		return
	}
	if c.HostEnv == "" && c.Host == "" {
		c.HostEnv = "DB_HOST"
	}
	if c.Port == 0 {
		switch c.Driver {
		case DriverMySQL:
			c.Port = 3306
		case DriverPostgres:
			c.Port = 5432
		}
	}
}

type Collector struct {
	name     string
	settings Settings
	db       *sql.DB
	logger   *zap.Logger
}

func New(cfg config.DataSource, logger *zap.Logger) (*Collector, error) {
	var settings Settings
	if err := cfg.Decode(&settings); err != nil {
		return nil, err
	}
	settings.setDefaults()
	if err := common.Require("query", strings.TrimSpace(settings.Query)); err != nil {
		return nil, err
	}

	driverName, dsn, err := settings.Connection.dsn(logger)
	if err != nil {
		return nil, err
	}

	// sql.Open does not connect; connection errors surface per cycle.
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", settings.Connection.Driver, err)
	}
	if settings.Connection.MaxOpenConns > 0 {
		db.SetMaxOpenConns(settings.Connection.MaxOpenConns)
	}
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Collector{
		name:     cfg.Name,
		settings: settings,
		db:       db,
		logger:   logger,
	}, nil
}

// dsn returns the database/sql driver name and data source name.
func (c Connection) dsn(logger *zap.Logger) (string, string, error) {
	switch c.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = common.Env(logger, c.UsernameEnv)
		mc.Passwd = common.Env(logger, c.PasswordEnv)
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.host(logger), strconv.Itoa(c.Port))
		mc.DBName = c.Database
		mc.ParseTime = true
		if len(c.Params) > 0 {
			mc.Params = c.Params
		}
		return "mysql", mc.FormatDSN(), nil

	case DriverPostgres:
		u := &url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(c.host(logger), strconv.Itoa(c.Port)),
			Path:   "/" + c.Database,
		}
		if user := common.Env(logger, c.UsernameEnv); user != "" {
			u.User = url.UserPassword(user, common.Env(logger, c.PasswordEnv))
		}
		q := url.Values{}
		for k, v := range c.Params {
			q.Set(k, v)
		}
		if c.SSLMode != "" {
			q.Set("sslmode", c.SSLMode)
		}
		u.RawQuery = q.Encode()
		return "postgres", u.String(), nil

	case DriverSQLite:
		if err := common.Require("connection.database", c.Database); err != nil {
			return "", "", err
		}
		return "sqlite", c.Database, nil

	case DriverSnowflake:
		account := c.Account
		if account == "" {
			account = common.Env(logger, c.AccountEnv)
		}
		if err := common.Require("connection.account", account); err != nil {
			return "", "", err
		}
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   account,
			User:      common.Env(logger, c.UsernameEnv),
			Password:  common.Env(logger, c.PasswordEnv),
			Database:  c.Database,
			Schema:    c.Schema,
			Warehouse: c.Warehouse,
			Role:      c.Role,
		})
		if err != nil {
			return "", "", fmt.Errorf("snowflake dsn: %w", err)
		}
		return "snowflake", dsn, nil

	default:
		return "", "", fmt.Errorf("unsupported database driver %q (supported: %s, %s, %s, %s)",
			c.Driver, DriverMySQL, DriverPostgres, DriverSQLite, DriverSnowflake)
	}
}

func (c Connection) host(logger *zap.Logger) string {
	if c.Host != "" {
		return c.Host
	}
	return common.EnvOr(logger, c.HostEnv, "localhost")
}

func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	rows, err := c.db.QueryContext(ctx, c.settings.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if c.settings.LowercaseColumns {
		for i := range columns {
			columns[i] = strings.ToLower(columns[i])
		}
	}

	var records []source.Record
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec := make(source.Record, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				rec[col] = string(v)
			default:
				rec[col] = v
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	c.logger.Debug("Fetched rows", zap.Int("count", len(records)))
	return records, nil
}

func (c *Collector) Close() error {
	return c.db.Close()
}
