package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/config"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

const schemaColumnsQuery = `
SELECT t.TABLE_SCHEMA, t.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE
FROM information_schema.TABLES AS t
JOIN information_schema.COLUMNS AS c
  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA
 AND t.TABLE_NAME = c.TABLE_NAME
WHERE t.TABLE_TYPE = 'BASE TABLE'
  AND t.TABLE_SCHEMA = DATABASE()
ORDER BY t.TABLE_SCHEMA, t.TABLE_NAME, c.ORDINAL_POSITION`

type mysqlHandler struct{}

var _ database.DialectHandler = (*mysqlHandler)(nil)

func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	instanceConnectionName := cfg.CloudSQLInstanceConnectionName
	if cfg.User == "" || cfg.DBName == "" || instanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, db, instance)")
	}

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", instanceConnectionName)

	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			conn, dialErr := d.Dial(ctx, instanceConnectionName, opts...)
			if dialErr != nil {
				zap.L().Error("cloud SQL dial failed",
					zap.String("instance", instanceConnectionName), zap.Error(dialErr))
			}
			return conn, dialErr
		})

	mysqlCfg := baseConfig(cfg)
	mysqlCfg.Net = network
	mysqlCfg.Addr = instanceConnectionName

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mysqlCfg := baseConfig(cfg)
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

func baseConfig(cfg config.DatabaseConfig) *mysql.Config {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.DBName = cfg.DBName
	mysqlCfg.AllowNativePasswords = true
	mysqlCfg.ParseTime = true
	return mysqlCfg
}

func (h mysqlHandler) Kind() string { return "mysql" }

func (h mysqlHandler) Flavor() database.SQLFlavor {
	return database.SQLFlavor{Product: "MySQL", Language: "MySQL"}
}

func (h mysqlHandler) SchemaColumnsQuery() string { return schemaColumnsQuery }

func init() {
	database.RegisterDialectHandler("mysql", mysqlHandler{})
	database.RegisterDialectHandler("cloudsqlmysql", mysqlHandler{})
}
