package mqtt

import "fmt"

// TopicPrefix is the root of every topic the bridge publishes.
const TopicPrefix = "loralert"

// Topics provides builders for the bridge's MQTT topics.
//
//	topic := mqtt.Topics{}.Alert("7")
//	// Returns: "loralert/alert/7"
type Topics struct{}

// Alert returns the topic for dispatch reports of one device.
func (Topics) Alert(deviceID string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefix, deviceID)
}

// AllAlerts returns a wildcard matching every device's alert topic.
func (Topics) AllAlerts() string {
	return TopicPrefix + "/alert/+"
}

// Status returns the topic for gateway status lines.
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Health returns the retained bridge health topic.
func (Topics) Health() string {
	return TopicPrefix + "/health"
}

// SystemStatus returns the retained online/offline presence topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}
