// Package lora implements the serial bridge between a LoRa gateway and the
// local alert output.
//
// A gateway attached over a UART prints one text line per radio message.
// Event messages have the form "<device id>:<message type>", for example
// "1:HELP". Everything else is status text from the gateway itself.
//
// # Architecture
//
//	┌────────────┐  bytes  ┌────────┐ Line ┌─────────┐ Event ┌────────────┐
//	│ ByteSource │────────►│ Framer │─────►│ Decode  │──────►│ Dispatcher │──► AlertSink
//	└────────────┘         └────────┘      └─────────┘       └────────────┘
//	                 driven by Bridge.Run (the ingest loop)
//
// # Key Responsibilities
//
//   - Frame newline-terminated lines out of short-timeout serial reads
//   - Classify lines as events, status text, suppressed noise or malformed input
//   - Resolve events through the device and alert tables
//   - Play at most one alert at a time, in arrival order
//   - Release the serial port and the audio output exactly once on shutdown
//
// Lines containing "parity error" without a separator are a known artifact
// of the gateway and are dropped silently.
//
// # Thread Safety
//
// Bridge.Run must be called once. Dispatcher methods are safe for
// concurrent use; playback is serialised internally.
package lora
