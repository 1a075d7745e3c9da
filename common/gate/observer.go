package gate

// Event is emitted on every flow transition
type Event struct {
	Kind     Kind
	Name     string
	FlowID   string
	Identity string
	Attempts int
	State    State
	Metadata map[string]interface{}
}

// Observer receives flow events (metrics, audit log). OnEvent is called
// without any gate lock held and must not block for long.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Observers fans an event out to several observers
type Observers []Observer

func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		obs.OnEvent(e)
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
