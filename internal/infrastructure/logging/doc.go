// Package logging provides structured logging for the LoRa alert bridge.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same format and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("serial port opened", "port", "/dev/ttyUSB0", "baud", 9600)
//	logger.Error("player failed", "error", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
