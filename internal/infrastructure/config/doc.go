// Package config loads the bridge configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// LORALERT_* environment variables. Validate reports every problem at once
// so an operator can fix the file in one pass.
//
// The serial read timeout must not exceed ingest.poll_interval; the ingest
// loop relies on it to notice cancellation within one interval.
//
// Keep the MQTT password and InfluxDB token out of the file and set
// LORALERT_MQTT_PASSWORD / LORALERT_INFLUXDB_TOKEN instead.
package config
