// Package mqtt publishes bridge output to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// The bridge only publishes; it never subscribes.
//
//	loralert/alert/{device_id}   one message per dispatch report
//	loralert/status              gateway status text
//	loralert/health              retained bridge health
//	loralert/system/status       retained online/offline presence (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.Status(), msg, false)
//
// Use TLS (cfg.Broker.TLS) whenever the broker is not on localhost.
package mqtt
