package notify

// Outbox collects the events produced inside a transaction. They are
// dispatched only after the transaction commits.
type Outbox struct {
	events []Event
}

func (o *Outbox) Add(e Event) {
	o.events = append(o.events, e)
}

func (o *Outbox) Events() []Event {
	return o.events
}

// Flush dispatches the collected events and empties the outbox
func (o *Outbox) Flush(d Dispatcher) {
	if len(o.events) == 0 {
		return
	}
	d.Dispatch(o.events...)
	o.events = nil
}
