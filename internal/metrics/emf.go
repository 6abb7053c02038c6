// Package metrics emits custom metrics in the CloudWatch Embedded Metrics
// Format (EMF). Metrics are written as one structured JSON line to stdout,
// where CloudWatch extracts them automatically; no API calls, no latency.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Standard CloudWatch metric units.
const (
	UnitMilliseconds = "Milliseconds"
	UnitCount        = "Count"
	UnitNone         = "None"
)

type metricDef struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

type emfDirective struct {
	Timestamp         int64      `json:"Timestamp"`
	CloudWatchMetrics []cwMetric `json:"CloudWatchMetrics"`
}

type cwMetric struct {
	Namespace  string      `json:"Namespace"`
	Dimensions [][]string  `json:"Dimensions"`
	Metrics    []metricDef `json:"Metrics"`
}

// Recorder accumulates dimensions, metrics, and properties for a single
// EMF flush. Not safe for concurrent use; create one per operation.
type Recorder struct {
	namespace string
	dimKeys   []string
	dimVals   map[string]string
	defs      []metricDef
	values    map[string]float64
	props     map[string]any
	out       io.Writer
}

var (
	functionName string
	initOnce     sync.Once
)

// New creates an EMF Recorder with the given CloudWatch namespace. The
// FunctionName dimension is added automatically inside Lambda.
func New(namespace string) *Recorder {
	initOnce.Do(func() {
		functionName = os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	})
	r := &Recorder{
		namespace: namespace,
		dimVals:   make(map[string]string),
		values:    make(map[string]float64),
		props:     make(map[string]any),
		out:       os.Stdout,
	}
	if functionName != "" {
		r.Dimension("FunctionName", functionName)
	}
	return r
}

// SetOutput redirects the EMF line, for tests.
func (r *Recorder) SetOutput(w io.Writer) *Recorder {
	r.out = w
	return r
}

// Dimension adds a dimension key-value pair. Dimensions are indexed in
// CloudWatch and appear as filterable attributes on the metric.
func (r *Recorder) Dimension(key, value string) *Recorder {
	if _, seen := r.dimVals[key]; !seen {
		r.dimKeys = append(r.dimKeys, key)
	}
	r.dimVals[key] = value
	return r
}

// Metric records a named metric value with a CloudWatch unit. Recording
// the same name again overwrites the previous value.
func (r *Recorder) Metric(name string, value float64, unit string) *Recorder {
	if _, seen := r.values[name]; !seen {
		r.defs = append(r.defs, metricDef{Name: name, Unit: unit})
	}
	r.values[name] = value
	return r
}

// Count increments a count metric by one.
func (r *Recorder) Count(name string) *Recorder {
	return r.Metric(name, r.values[name]+1, UnitCount)
}

// Duration records a latency metric in milliseconds.
func (r *Recorder) Duration(name string, d time.Duration) *Recorder {
	return r.Metric(name, float64(d.Milliseconds()), UnitMilliseconds)
}

// Property adds a non-metric field to the EMF document. Properties are
// searchable in CloudWatch Logs Insights but create no metrics.
func (r *Recorder) Property(key string, value any) *Recorder {
	r.props[key] = value
	return r
}

// Flush serializes the EMF document as a single JSON line. A Recorder with
// no metrics flushes nothing. Do not reuse the Recorder after flushing.
func (r *Recorder) Flush() {
	if len(r.defs) == 0 {
		return
	}

	doc := make(map[string]any, len(r.dimVals)+len(r.values)+len(r.props)+1)
	doc["_aws"] = emfDirective{
		Timestamp: time.Now().UnixMilli(),
		CloudWatchMetrics: []cwMetric{{
			Namespace:  r.namespace,
			Dimensions: [][]string{r.dimKeys},
			Metrics:    r.defs,
		}},
	}
	for k, v := range r.dimVals {
		doc[k] = v
	}
	for k, v := range r.values {
		doc[k] = v
	}
	for k, v := range r.props {
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emf: failed to marshal metrics: %v\n", err)
		return
	}
	fmt.Fprintln(r.out, string(data))
}
