package power

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// LEDReader reads the logical level of the power LED (true = lit).
type LEDReader interface {
	LEDLit() (bool, error)
}

// Hook observes transitions. It runs on the monitor goroutine and must not block.
type Hook func(tr Transition, counts Counts)

// Monitor samples the LED on every tick and publishes the classified state
// into its Cell.
type Monitor struct {
	reader     LEDReader
	cell       *Cell
	classifier *Classifier
	now        func() time.Time
	hook       Hook

	lit       bool
	haveLevel bool
}

// NewMonitor creates a monitor writing into cell. hook may be nil.
func NewMonitor(reader LEDReader, cell *Cell, now func() time.Time, hook Hook) *Monitor {
	return &Monitor{
		reader:     reader,
		cell:       cell,
		classifier: NewClassifier(now()),
		now:        now,
		hook:       hook,
	}
}

// Run samples on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			m.step()
		}
	}
}

func (m *Monitor) step() {
	lit, err := m.reader.LEDLit()
	if err != nil {
		// Sensor flutter: keep the previous level for this tick.
		log.WithError(err).Debug("power: led read failed")
		if !m.haveLevel {
			return
		}
		lit = m.lit
	}
	m.lit = lit
	m.haveLevel = true

	tr := m.classifier.Process(Input{Lit: lit, Time: m.now()})
	m.cell.store(m.classifier.State())
	if tr != nil && m.hook != nil {
		m.hook(*tr, m.classifier.Counts())
	}
}
