package ctxutil

import "context"

type traceDataKey struct{}

// TraceData identifies one API request. OperationID is filled in once the request has
// created an operation, so request logs can be joined with the operation timeline.
type TraceData struct {
	TraceID     string
	RequestID   string
	OperationID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// SetOperationID records the operation created by the current request, if it is traced.
func SetOperationID(ctx context.Context, operationID string) {
	if td := GetTraceData(ctx); td != nil {
		td.OperationID = operationID
	}
}

// LogFields returns the trace identifiers as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	var fields []interface{}
	if td.TraceID != "" {
		fields = append(fields, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		fields = append(fields, "request_id", td.RequestID)
	}
	if td.OperationID != "" {
		fields = append(fields, "operation_id", td.OperationID)
	}
	return fields
}
