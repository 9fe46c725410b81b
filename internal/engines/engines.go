// Package engines wires every concrete engine adapter into a
// collector.Registry. It is the one package allowed to import all seven
// driver-specific adapter packages, keeping internal/collector itself free
// of driver dependencies.
package engines

import (
	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/internal/collector/dameng"
	"github.com/elchinoo/dbsentry/internal/collector/kingbase"
	"github.com/elchinoo/dbsentry/internal/collector/mongodb"
	"github.com/elchinoo/dbsentry/internal/collector/mssql"
	"github.com/elchinoo/dbsentry/internal/collector/mysql"
	"github.com/elchinoo/dbsentry/internal/collector/oracle"
	"github.com/elchinoo/dbsentry/internal/collector/postgres"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// NewRegistry builds a collector.Registry with all seven supported engines
// registered.
func NewRegistry() *collector.Registry {
	r := collector.NewRegistry()
	r.Register(types.EnginePostgreSQL, postgres.New())
	r.Register(types.EngineMySQL, mysql.New())
	r.Register(types.EngineOracle, oracle.New())
	r.Register(types.EngineMSSQL, mssql.New())
	r.Register(types.EngineMongoDB, mongodb.New())
	r.Register(types.EngineDameng, dameng.New())
	r.Register(types.EngineKingbase, kingbase.New())
	return r
}
