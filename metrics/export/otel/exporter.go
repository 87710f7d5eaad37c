package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// reading is one collection's view of the source.
type reading struct {
	snap    authflow.MetricsSnapshot
	dropped uint64
}

type observeFunc func(metric.Observer, reading)

// OTelExporter publishes engine counters as observable OTel instruments.
// Histograms are exposed as one cumulative gauge per bucket plus a count.
// Attempt counters share one instrument with operation and outcome
// attributes.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	observers    []observeFunc
	instruments  []metric.Observable
}

// NewOTelExporter registers instruments on meter that read from engine on
// every collection.
func NewOTelExporter(meter metric.Meter, engine *authflow.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	steps := []func(metric.Meter) error{e.counters, e.attempts, e.histograms, e.auditDropped}
	for _, step := range steps {
		if err := step(meter); err != nil {
			return nil, err
		}
	}

	registration, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		r := reading{snap: e.source.MetricsSnapshot(), dropped: e.source.AuditDropped()}
		for _, observe := range e.observers {
			observe(o, r)
		}
		return nil
	}, e.instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) add(ins metric.Observable, observe observeFunc) {
	e.instruments = append(e.instruments, ins)
	e.observers = append(e.observers, observe)
}

func (e *OTelExporter) counters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		id := def.ID
		e.add(ins, func(o metric.Observer, r reading) {
			o.ObserveInt64(ins, int64(r.snap.Counters[id]))
		})
	}
	return nil
}

func (e *OTelExporter) attempts(meter metric.Meter) error {
	ins, err := meter.Int64ObservableCounter(internaldefs.AttemptFamily, metric.WithDescription(internaldefs.AttemptHelp))
	if err != nil {
		return fmt.Errorf("create observable counter %s: %w", internaldefs.AttemptFamily, err)
	}

	type series struct {
		key  authflow.AttemptKey
		opts metric.MeasurementOption
	}
	var all []series
	for _, op := range authflow.AttemptOperations() {
		for _, outcome := range authflow.AttemptOutcomes() {
			all = append(all, series{
				key: authflow.AttemptKey{Operation: op, Outcome: outcome},
				opts: metric.WithAttributeSet(attribute.NewSet(
					attribute.String("operation", internaldefs.OperationLabel(op)),
					attribute.String("outcome", outcome.String()),
				)),
			})
		}
	}

	e.add(ins, func(o metric.Observer, r reading) {
		for _, s := range all {
			o.ObserveInt64(ins, int64(r.snap.Attempts[s.key]), s.opts)
		}
	})
	return nil
}

func (e *OTelExporter) histograms(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		var buckets [8]metric.Int64ObservableGauge
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			buckets[i] = ins
			e.instruments = append(e.instruments, ins)
		}
		countName := def.Name + "_count"
		count, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}

		id := def.ID
		e.add(count, func(o metric.Observer, r reading) {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(r.snap.Histograms[id]))
			for i, ins := range buckets {
				o.ObserveInt64(ins, int64(cumulative[i]))
			}
			o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
		})
	}
	return nil
}

func (e *OTelExporter) auditDropped(meter metric.Meter) error {
	ins, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.add(ins, func(o metric.Observer, r reading) {
		o.ObserveInt64(ins, int64(r.dropped))
	})
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
