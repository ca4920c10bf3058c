package telemetry

import "time"

// TopicID identifies one of the measurement streams published by the broker.
type TopicID int

const (
	Temperature TopicID = iota + 1
	Density
	FlowRate
)

// Topics is the fixed set subscribed on every connect.
var Topics = []TopicID{Temperature, Density, FlowRate}

var topicAddresses = map[TopicID]string{
	Temperature: "/topic/temperaturas",
	Density:     "/topic/densidad",
	FlowRate:    "/topic/caudal",
}

var topicNames = map[TopicID]string{
	Temperature: "temperature",
	Density:     "density",
	FlowRate:    "flow_rate",
}

// Address returns the broker destination the topic is published on.
func (t TopicID) Address() string {
	return topicAddresses[t]
}

func (t TopicID) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return "unknown"
}

// TopicForAddress maps a broker destination back to its TopicID.
func TopicForAddress(addr string) (TopicID, bool) {
	for id, a := range topicAddresses {
		if a == addr {
			return id, true
		}
	}
	return 0, false
}

// Reading is a single decoded measurement.
type Reading struct {
	Topic      TopicID
	Value      float64
	ReceivedAt time.Time
}
