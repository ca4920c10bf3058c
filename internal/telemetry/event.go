package telemetry

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// EventReading carries a decoded Reading.
	EventReading EventKind = iota + 1
	// EventConnected is sent each time the session reaches CONNECTED and has subscribed.
	EventConnected
	// EventDisconnected is sent once when a CONNECTED session loses its transport.
	EventDisconnected
	// EventError reports a broker ERROR frame or a failed connection attempt.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReading:
		return "reading"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is what a Session delivers to its Handler.
type Event struct {
	Kind    EventKind
	Reading Reading // EventReading
	Err     error   // EventDisconnected, EventError
	Attempt int     // connection attempt that produced the event, starting at 1
}

// Handler consumes session events. HandleEvent is never called concurrently
// for the same Session.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// Handlers fans each event out to every non-nil handler, in order.
type Handlers []Handler

func (hs Handlers) HandleEvent(ev Event) {
	for _, h := range hs {
		if h != nil {
			h.HandleEvent(ev)
		}
	}
}

// Callbacks is a Handler built from optional per-topic and lifecycle functions.
// A nil field means the event is dropped without side effects.
type Callbacks struct {
	OnTemperature func(value float64)
	OnDensity     func(value float64)
	OnFlowRate    func(value float64)
	OnConnect     func()
	OnDisconnect  func()
	OnError       func(err error)
}

func (c Callbacks) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventReading:
		var fn func(float64)
		switch ev.Reading.Topic {
		case Temperature:
			fn = c.OnTemperature
		case Density:
			fn = c.OnDensity
		case FlowRate:
			fn = c.OnFlowRate
		}
		if fn != nil {
			fn(ev.Reading.Value)
		}
	case EventConnected:
		if c.OnConnect != nil {
			c.OnConnect()
		}
	case EventDisconnected:
		if c.OnDisconnect != nil {
			c.OnDisconnect()
		}
	case EventError:
		if c.OnError != nil {
			c.OnError(ev.Err)
		}
	}
}
