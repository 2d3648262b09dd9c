package otel

import (
	"context"
	"errors"
	"fmt"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *ctxAuth.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() ctxAuth.MetricsSnapshot
	AuditDropped() uint64
}

// Option configures an Exporter.
type Option func(*options)

type options struct {
	attrs []attribute.KeyValue
}

// WithAttributes attaches constant attributes to every observation,
// e.g. a service or region label.
func WithAttributes(kv ...attribute.KeyValue) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, kv...)
	}
}

type counterInstrument struct {
	id  ctxAuth.MetricID
	ins metric.Int64ObservableCounter
}

// histogramInstrument exposes one histogram as a bucket gauge keyed by "le"
// and a total count gauge.
type histogramInstrument struct {
	id     ctxAuth.MetricID
	bucket metric.Int64ObservableGauge
	count  metric.Int64ObservableGauge
}

// Exporter publishes engine metrics as OTel observable instruments.
type Exporter struct {
	source       Source
	registration metric.Registration

	base       metric.MeasurementOption
	bucketOpts []metric.MeasurementOption

	counters     []counterInstrument
	histograms   []histogramInstrument
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers the instruments on meter and reads from engine.
func NewExporter(meter metric.Meter, engine *ctxAuth.Engine, opts ...Option) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine, opts...)
}

// NewExporterFromSource registers the instruments on meter and reads from source.
func NewExporterFromSource(meter metric.Meter, source Source, opts ...Option) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	e := &Exporter{
		source:     source,
		base:       metric.WithAttributeSet(attribute.NewSet(o.attrs...)),
		bucketOpts: make([]metric.MeasurementOption, len(internaldefs.BucketLabels)),
	}
	for i, le := range internaldefs.BucketLabels {
		kv := append(append([]attribute.KeyValue(nil), o.attrs...), attribute.String("le", le))
		e.bucketOpts[i] = metric.WithAttributeSet(attribute.NewSet(kv...))
	}

	if err := e.createInstruments(meter); err != nil {
		return nil, err
	}

	observables := make([]metric.Observable, 0, len(e.counters)+2*len(e.histograms)+1)
	for _, c := range e.counters {
		observables = append(observables, c.ins)
	}
	for _, h := range e.histograms {
		observables = append(observables, h.bucket, h.count)
	}
	observables = append(observables, e.auditDropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) createInstruments(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, ins: ins})
	}

	for _, def := range internaldefs.HistogramDefs {
		bucket, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("histogram %s buckets: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
			metric.WithUnit("1"))
		if err != nil {
			return fmt.Errorf("histogram %s count: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, histogramInstrument{id: def.ID, bucket: bucket, count: count})
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	return nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]), e.base)
	}
	for _, h := range e.histograms {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, v := range cum {
			o.ObserveInt64(h.bucket, int64(v), e.bucketOpts[i])
		}
		o.ObserveInt64(h.count, int64(cum[len(cum)-1]), e.base)
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()), e.base)
	return nil
}

// Close unregisters the collection callback. Safe on a nil Exporter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
