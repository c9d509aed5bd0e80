// Package observability provides metrics and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrPath     = "path"
	attrStatus   = "status"
	attrPipeline = "pipeline"
	attrKind     = "kind"
	attrState    = "state"
	attrDatatype = "datatype"
	attrSuccess  = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/jobs/abc123 -> /v1/jobs/{jobId}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func pipelineAttr(pipeline string) attribute.KeyValue {
	return attribute.String(attrPipeline, pipeline)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String(attrKind, kind)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func datatypeAttr(datatype string) attribute.KeyValue {
	return attribute.String(attrDatatype, datatype)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	const prefix = "/v1/jobs/"
	if len(path) > len(prefix) && strings.HasPrefix(path, prefix) {
		if strings.HasSuffix(path, "/import") {
			return "/v1/jobs/{jobId}/import"
		}
		return "/v1/jobs/{jobId}"
	}
	return path
}

// WithPipeline returns a metric option with the pipeline attribute.
func WithPipeline(pipeline string) metric.MeasurementOption {
	return metric.WithAttributes(pipelineAttr(pipeline))
}

// WithState returns a metric option with the state attribute.
func WithState(state string) metric.MeasurementOption {
	return metric.WithAttributes(stateAttr(state))
}
