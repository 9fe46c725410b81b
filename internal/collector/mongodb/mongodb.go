// Package mongodb implements the MongoDB engine adapter over the native
// mongo-driver client, reading serverStatus, dbStats and replSetGetStatus
// documents directly rather than going through database/sql.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/elchinoo/dbsentry/internal/collector"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// Adapter implements collector.Adapter for MongoDB.
type Adapter struct{}

// New returns a MongoDB adapter.
func New() *Adapter { return &Adapter{} }

type handle struct {
	client *mongo.Client
	db     *mongo.Database
}

func (h *handle) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.client.Disconnect(ctx)
}

func uri(inst types.Instance) string {
	if inst.Credentials.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=admin",
			inst.Credentials.Username, inst.Credentials.Password,
			inst.Address.Host, inst.Address.Port, inst.Database)
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", inst.Address.Host, inst.Address.Port, inst.Database)
}

// Open establishes a client connection to inst.
func (a *Adapter) Open(ctx context.Context, inst types.Instance) (collector.Handle, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri(inst)))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(connectCtx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	database := inst.Database
	if database == "" {
		database = "admin"
	}
	return &handle{client: client, db: client.Database(database)}, nil
}

// Ping runs the connection_status sub-probe.
func (a *Adapter) Ping(ctx context.Context, h collector.Handle) error {
	return h.(*handle).db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// Collect runs the remaining ordered sub-probes.
func (a *Adapter) Collect(ctx context.Context, h collector.Handle, inst types.Instance) (types.Metrics, error) {
	db := h.(*handle).db
	m := types.Metrics{Timestamp: time.Now(), MonitorTime: float64(time.Now().Unix())}
	probes := collector.NewProbeErrors()

	var serverStatus bson.M
	probes.Run("server_status", func() error {
		return db.RunCommand(ctx, bson.D{{Key: "serverStatus", Value: 1}}).Decode(&serverStatus)
	})

	probes.Run("connection_stats", func() error {
		if serverStatus == nil {
			return fmt.Errorf("serverStatus unavailable")
		}
		m.ConnectionStats = connectionStats(serverStatus)
		return nil
	})

	probes.Run("qps", func() error {
		if serverStatus == nil {
			return fmt.Errorf("serverStatus unavailable")
		}
		m.QPS = queryStats(serverStatus)
		return nil
	})

	probes.Run("slow_queries", func() error {
		sq, err := slowQueries(ctx, db)
		if err != nil {
			return err
		}
		m.SlowQueries = sq
		return nil
	})

	probes.Run("cache_hit_rate", func() error {
		if serverStatus == nil {
			return fmt.Errorf("serverStatus unavailable")
		}
		rate, ok := cacheHitRate(serverStatus)
		if !ok {
			return fmt.Errorf("wiredTiger cache stats unavailable")
		}
		m.CacheHitRate = rate
		return nil
	})

	probes.Run("tablespace_usage", func() error {
		ts, err := tablespaceUsage(ctx, db)
		if err != nil {
			return err
		}
		m.TablespaceUsage = ts
		return nil
	})

	probes.Run("process_list", func() error {
		procs, err := processList(ctx, db)
		if err != nil {
			return err
		}
		m.ProcessList = procs
		return nil
	})

	probes.Run("replication_status", func() error {
		rep, err := replicationStatus(ctx, db)
		if err != nil {
			return err
		}
		m.Replication = rep
		return nil
	})

	return m, nil
}

func connectionStats(status bson.M) *types.ConnectionStats {
	conns, _ := status["connections"].(bson.M)
	current := toInt64(conns["current"])
	available := toInt64(conns["available"])
	total := current + available

	percent := float64(0)
	if total > 0 {
		percent = float64(current) / float64(total) * 100
	}

	return &types.ConnectionStats{Max: &total, Current: &current, Percent: &percent, Active: &current}
}

func queryStats(status bson.M) *types.QPSStats {
	opcounters, _ := status["opcounters"].(bson.M)
	var total int64
	for _, v := range opcounters {
		total += toInt64(v)
	}
	uptime := toFloat64(status["uptime"])

	qps := float64(0)
	if uptime > 0 {
		qps = float64(total) / uptime
	}

	return &types.QPSStats{TotalQueries: &total, UptimeSeconds: &uptime, QPS: &qps}
}

// slowQueries reads the configured slowms threshold. Counting slow
// operations needs the system.profile collection with profiling enabled,
// which is an opt-in operational choice this monitor does not make on the
// target's behalf; the count is left at zero, matching the threshold-only
// visibility the original tool exposed here.
func slowQueries(ctx context.Context, db *mongo.Database) (*types.SlowQueries, error) {
	var result bson.M
	err := db.RunCommand(ctx, bson.D{
		{Key: "getParameter", Value: 1}, {Key: "slowms", Value: 1},
	}).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("getParameter slowms: %w", err)
	}

	slowms := toFloat64(result["slowms"])
	if slowms == 0 {
		slowms = 100
	}
	threshold := slowms / 1000
	count := int64(0)
	return &types.SlowQueries{Count: &count, ThresholdSecond: &threshold}, nil
}

func cacheHitRate(status bson.M) (*types.CacheHitRate, bool) {
	wiredTiger, ok := status["wiredTiger"].(bson.M)
	if !ok {
		return nil, false
	}
	cache, ok := wiredTiger["cache"].(bson.M)
	if !ok {
		return nil, false
	}

	hits := toInt64(cache["hits"])
	misses := toInt64(cache["misses"])
	total := hits + misses

	rate := float64(0)
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}

	return &types.CacheHitRate{RatePercent: &rate, Hits: &hits, Misses: &misses}, true
}

func tablespaceUsage(ctx context.Context, db *mongo.Database) ([]types.TablespaceUsage, error) {
	var dbStats bson.M
	if err := db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&dbStats); err != nil {
		return nil, fmt.Errorf("dbStats: %w", err)
	}

	dataMB := toFloat64(dbStats["dataSize"]) / (1024 * 1024)
	storageMB := toFloat64(dbStats["storageSize"]) / (1024 * 1024)
	freeMB := storageMB - dataMB
	percent := float64(0)
	if storageMB > 0 {
		percent = dataMB / storageMB * 100
	}

	return []types.TablespaceUsage{{
		Name: db.Name(), TotalMB: &storageMB, UsedMB: &dataMB, FreeMB: &freeMB, UsagePercent: &percent,
	}}, nil
}

func processList(ctx context.Context, db *mongo.Database) ([]types.ProcessEntry, error) {
	var currentOp bson.M
	err := db.RunCommand(ctx, bson.D{
		{Key: "currentOp", Value: 1}, {Key: "active", Value: true},
	}).Decode(&currentOp)
	if err != nil {
		return nil, fmt.Errorf("currentOp: %w", err)
	}

	inprog, _ := currentOp["inprog"].(bson.A)
	out := make([]types.ProcessEntry, 0, len(inprog))
	for _, raw := range inprog {
		op, ok := raw.(bson.M)
		if !ok {
			continue
		}
		out = append(out, types.ProcessEntry{
			SessionID: fmt.Sprintf("%v", op["opid"]),
			Host:      fmt.Sprintf("%v", op["client"]),
			State:     fmt.Sprintf("%v", op["op"]),
			Query:     fmt.Sprintf("%v", op["ns"]),
		})
	}
	return out, nil
}

func replicationStatus(ctx context.Context, db *mongo.Database) (*types.ReplicationStatus, error) {
	var status bson.M
	err := db.RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&status)
	if err != nil {
		return &types.ReplicationStatus{Status: types.ReplicationNotConfigured}, nil
	}

	members, _ := status["members"].(bson.A)
	var replicas []string
	for _, raw := range members {
		member, ok := raw.(bson.M)
		if !ok {
			continue
		}
		if fmt.Sprintf("%v", member["stateStr"]) != "PRIMARY" {
			replicas = append(replicas, fmt.Sprintf("%v", member["name"]))
		}
	}

	return &types.ReplicationStatus{
		Status: types.ReplicationRunning, Role: "replica set", Replicas: replicas,
	}, nil
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}
