package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/elchinoo/dbsentry/internal/config"
	"github.com/elchinoo/dbsentry/pkg/types"
)

// mongoSink writes snapshots as plain documents into monitor_main/
// monitor_alerts collections. MongoDB is schemaless, so EnsureSchema is a
// no-op, matching the original monitor's own early return for this engine.
type mongoSink struct {
	client *mongo.Client
	db     *mongo.Database
}

func openMongoSink(ctx context.Context, cfg *config.IngestionConfig) (Sink, error) {
	uri := fmt.Sprintf("mongodb://%s:%d", cfg.Host, cfg.Port)
	if cfg.User != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin", cfg.User, cfg.Password, cfg.Host, cfg.Port)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo sink: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo sink: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "monitor"
	}
	return &mongoSink{client: client, db: client.Database(database)}, nil
}

func (s *mongoSink) EnsureSchema(ctx context.Context) error { return nil }

// WriteBatch inserts one monitor_main document per snapshot and one
// monitor_alerts document per triggered alert. Mongo has no multi-collection
// transaction requirement here since each pass writes disjoint documents;
// a partial batch failure is reported but whatever already landed stays.
func (s *mongoSink) WriteBatch(ctx context.Context, snapshots []types.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	mainDocs := make([]interface{}, 0, len(snapshots))
	var alertDocs []interface{}
	for _, snap := range snapshots {
		mainDocs = append(mainDocs, bson.M{
			"instance_name": snap.InstanceName,
			"timestamp":     snap.Timestamp,
			"monitor_time":  snap.MonitorTime,
			"stats":         snap.Stats,
			"thresholds":    snap.Thresholds,
		})
		for _, alert := range snap.Alerts {
			alertDocs = append(alertDocs, bson.M{
				"instance_name": alert.InstanceName,
				"timestamp":     alert.Timestamp,
				"level":         alert.Level,
				"message":       alert.Message,
				"metric":        alert.Metric,
				"value":         alert.Value,
				"threshold":     alert.Threshold,
			})
		}
	}

	if _, err := s.db.Collection("monitor_main").InsertMany(ctx, mainDocs); err != nil {
		return fmt.Errorf("insert monitor_main documents: %w", err)
	}
	if len(alertDocs) > 0 {
		if _, err := s.db.Collection("monitor_alerts").InsertMany(ctx, alertDocs); err != nil {
			return fmt.Errorf("insert monitor_alerts documents: %w", err)
		}
	}
	return nil
}

func (s *mongoSink) Close() error {
	return s.client.Disconnect(context.Background())
}
