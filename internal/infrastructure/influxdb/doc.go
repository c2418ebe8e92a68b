// Package influxdb writes bridge statistics to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Writes are
// non-blocking and batched; failures are delivered to the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // statistics are not exported
//	}
//	defer client.Close()
//
//	client.WriteIngestStats("loralert", map[string]any{"lines_read": 42})
package influxdb
