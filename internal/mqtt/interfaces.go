package mqtt

// MessageHandler receives messages for a subscribed topic. The payload is
// a private copy.
type MessageHandler func(topic string, payload []byte)
