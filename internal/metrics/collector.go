package metrics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Sample is one collected data point. Histograms report their count and sum
// as two samples with ".count" and ".sum" suffixes.
type Sample struct {
	Name       string  `json:"name"`
	Attributes string  `json:"attributes,omitempty"`
	Value      float64 `json:"value"`
}

// Collector owns an SDK meter provider that is read on demand.
type Collector struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
}

// NewCollector builds a meter provider tagged with the service name.
func NewCollector(serviceName string) *Collector {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	return &Collector{provider: provider, reader: reader}
}

// MeterProvider returns the provider instruments should be created on.
func (c *Collector) MeterProvider() metric.MeterProvider {
	return c.provider
}

// Snapshot collects every instrument and flattens the data points, sorted by
// name and attributes.
func (c *Collector) Snapshot(ctx context.Context) ([]Sample, error) {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var samples []Sample
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			samples = append(samples, flatten(m)...)
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Attributes < samples[j].Attributes
	})
	return samples, nil
}

// Shutdown flushes and releases the provider.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

func flatten(m metricdata.Metrics) []Sample {
	var out []Sample
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			out = append(out, Sample{Name: m.Name, Attributes: encode(dp.Attributes), Value: float64(dp.Value)})
		}
	case metricdata.Sum[float64]:
		for _, dp := range data.DataPoints {
			out = append(out, Sample{Name: m.Name, Attributes: encode(dp.Attributes), Value: dp.Value})
		}
	case metricdata.Gauge[int64]:
		for _, dp := range data.DataPoints {
			out = append(out, Sample{Name: m.Name, Attributes: encode(dp.Attributes), Value: float64(dp.Value)})
		}
	case metricdata.Gauge[float64]:
		for _, dp := range data.DataPoints {
			out = append(out, Sample{Name: m.Name, Attributes: encode(dp.Attributes), Value: dp.Value})
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			attrs := encode(dp.Attributes)
			out = append(out,
				Sample{Name: m.Name + ".count", Attributes: attrs, Value: float64(dp.Count)},
				Sample{Name: m.Name + ".sum", Attributes: attrs, Value: dp.Sum},
			)
		}
	}
	return out
}

func encode(set attribute.Set) string {
	return set.Encoded(attribute.DefaultEncoder())
}
