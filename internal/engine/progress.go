package engine

// Event is a single progress notification.
type Event struct {
	Description string
	Percent     float64
}

// Reporter delivers progress events synchronously. The zero value discards them.
type Reporter struct {
	fn func(Event)
}

func NewReporter(fn func(Event)) Reporter {
	return Reporter{fn: fn}
}

func (r Reporter) Report(description string, percent float64) {
	if r.fn == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.fn(Event{Description: description, Percent: percent})
}

// Func adapts the reporter to the callback shape used by the model and merge options.
func (r Reporter) Func() func(description string, percent float64) {
	if r.fn == nil {
		return nil
	}
	return r.Report
}

func percentOf(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}
