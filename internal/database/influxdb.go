// Package database exports the agent's allocation metric stream to
// InfluxDB. The flat metric list is the only externally persisted form of
// allocation state.
package database

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"colloc-agent/internal/config"
	"colloc-agent/internal/logging"
	"colloc-agent/internal/metrics"
)

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
	logger   *logrus.Logger
}

func NewInfluxDBClient(cfg config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		return nil, err
	}
	if health.Status != "pass" {
		logger.WithFields(logrus.Fields{
			"host":   cfg.Host,
			"status": health.Status,
		}).Error("InfluxDB health check failed")
		return nil, fmt.Errorf("influxdb health check failed: %s", health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
		logger:   logger,
	}, nil
}

// WriteMetrics stores one cycle's metric stream. Labels become tags, the
// value becomes the single field.
func (idb *InfluxDBClient) WriteMetrics(ctx context.Context, ms []metrics.Metric) error {
	if len(ms) == 0 {
		return nil
	}

	now := time.Now()
	points := make([]*write.Point, 0, len(ms))
	for _, m := range ms {
		tags := make(map[string]string, len(m.Labels)+1)
		for k, v := range m.Labels {
			tags[k] = v
		}
		tags["type"] = string(m.Type)

		points = append(points, influxdb2.NewPoint(
			m.Name,
			tags,
			map[string]interface{}{"value": m.Value},
			now,
		))
	}

	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write metrics to InfluxDB: %w", err)
	}

	idb.logger.WithField("points", len(points)).Debug("Wrote allocation metrics to InfluxDB")
	return nil
}

func (idb *InfluxDBClient) Close() {
	idb.client.Close()
}
