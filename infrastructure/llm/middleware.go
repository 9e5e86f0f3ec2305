package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-promptlab/internal/domain"
	"github.com/ahrav/go-promptlab/internal/ports"
)

// wrappedProvider adapts two request functions into a ports.Provider,
// keeping middleware implementations to a pair of closures.
type wrappedProvider struct {
	inner       ports.Provider
	execute     func(context.Context, ports.ExecutionRequest) (*domain.ProviderResponse, error)
	executeJSON func(context.Context, ports.ExecutionRequest) (map[string]any, error)
}

func (w *wrappedProvider) Name() string { return w.inner.Name() }

func (w *wrappedProvider) Execute(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
	return w.execute(ctx, req)
}

func (w *wrappedProvider) ExecuteJSON(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
	return w.executeJSON(ctx, req)
}

// RateLimitMiddleware bounds request rate with a shared token bucket of
// rps requests per second and the given burst. Both completion modes draw
// from the same bucket, since they hit the same provider quota.
func RateLimitMiddleware(rps float64, burst int) Middleware {
	return func(next ports.Provider) ports.Provider {
		limiter := rate.NewLimiter(rate.Limit(rps), burst)
		return &wrappedProvider{
			inner: next,
			execute: func(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
				if err := limiter.Wait(ctx); err != nil {
					return nil, NewProviderError(next.Name(), ErrorTypeRateLimit, 0, "rate limiter wait aborted", err)
				}
				return next.Execute(ctx, req)
			},
			executeJSON: func(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
				if err := limiter.Wait(ctx); err != nil {
					return nil, NewProviderError(next.Name(), ErrorTypeRateLimit, 0, "rate limiter wait aborted", err)
				}
				return next.ExecuteJSON(ctx, req)
			},
		}
	}
}

// TimeoutMiddleware bounds each request with a deadline. Expirations
// surface as timeout-classified provider errors.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next ports.Provider) ports.Provider {
		return &wrappedProvider{
			inner: next,
			execute: func(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return next.Execute(ctx, req)
			},
			executeJSON: func(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return next.ExecuteJSON(ctx, req)
			},
		}
	}
}

// CallMetrics receives per-call observations from MetricsMiddleware.
type CallMetrics interface {
	// RecordCall records one provider call with its mode ("execute" or
	// "execute_json"), duration, and outcome.
	RecordCall(provider, model, mode string, duration time.Duration, err error)
}

// MetricsMiddleware records call latency and outcomes for every request.
func MetricsMiddleware(collector CallMetrics) Middleware {
	return func(next ports.Provider) ports.Provider {
		observe := func(mode string, model string, start time.Time, err error) {
			collector.RecordCall(next.Name(), model, mode, time.Since(start), err)
		}
		return &wrappedProvider{
			inner: next,
			execute: func(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
				start := time.Now()
				resp, err := next.Execute(ctx, req)
				observe("execute", req.Model, start, err)
				return resp, err
			},
			executeJSON: func(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
				start := time.Now()
				result, err := next.ExecuteJSON(ctx, req)
				observe("execute_json", req.Model, start, err)
				return result, err
			},
		}
	}
}

// TracingMiddleware wraps every provider call in an OpenTelemetry span
// carrying the provider, model, and completion mode.
func TracingMiddleware() Middleware {
	tracer := otel.Tracer("promptlab/llm")
	return func(next ports.Provider) ports.Provider {
		startSpan := func(ctx context.Context, mode, model string) (context.Context, trace.Span) {
			return tracer.Start(ctx, "llm."+mode,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String("llm.provider", next.Name()),
					attribute.String("llm.model", model),
				))
		}
		end := func(span trace.Span, err error) {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
		return &wrappedProvider{
			inner: next,
			execute: func(ctx context.Context, req ports.ExecutionRequest) (*domain.ProviderResponse, error) {
				ctx, span := startSpan(ctx, "execute", req.Model)
				resp, err := next.Execute(ctx, req)
				end(span, err)
				return resp, err
			},
			executeJSON: func(ctx context.Context, req ports.ExecutionRequest) (map[string]any, error) {
				ctx, span := startSpan(ctx, "execute_json", req.Model)
				result, err := next.ExecuteJSON(ctx, req)
				end(span, err)
				return result, err
			},
		}
	}
}
