package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// IngestStatsMeasurement is the measurement written by WriteIngestStats.
const IngestStatsMeasurement = "ingest_stats"

// WriteIngestStats writes one snapshot of the bridge counters.
//
// Parameters:
//   - bridgeID: Tag identifying the bridge instance
//   - fields: Counter values (e.g. "lines_read", "outcome_played")
func (c *Client) WriteIngestStats(bridgeID string, fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	c.WritePoint(IngestStatsMeasurement, map[string]string{"bridge": bridgeID}, fields)
}

// WritePoint writes a point stamped with the current time.
//
// Example:
//
//	client.WritePoint("serial_link",
//	    map[string]string{"port": "/dev/ttyUSB0"},
//	    map[string]any{"reconnects": 1})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
