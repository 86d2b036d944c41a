package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/oculusnoob/vesper-memory"
)

// RecordClassification increments the router classification counter for
// the class a query was routed to. The router itself stays a pure
// dispatcher (router.Classify has no OTEL dependency); callers that hold
// an Instruments record the outcome after calling router.Route.
func RecordClassification(ctx context.Context, inst *Instruments, class vesper.QueryClass) {
	inst.RouterClassifications.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(class))))
}
