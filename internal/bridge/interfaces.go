package bridge

// Publisher defines the MQTT publishing capabilities needed by the bridge.
type Publisher interface {
	Publish(topic string, payload []byte) error
	PublishRetained(topic string, payload []byte) error
}
