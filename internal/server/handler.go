package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestRecorder 记录 HTTP 请求指标
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// HealthFunc 返回训练健康状态，nil 表示健康
type HealthFunc func() error

// NewMetricsHandler 创建暴露 /metrics 与 /healthz 的处理器
func NewMetricsHandler(recorder RequestRecorder, health HealthFunc) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status, code := "ok", http.StatusOK
		var msg string
		if health != nil {
			if err := health(); err != nil {
				status, code, msg = "unhealthy", http.StatusServiceUnavailable, err.Error()
			}
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "error": msg})
	})

	if recorder == nil {
		return mux
	}
	return instrument(mux, recorder)
}

// statusRecorder 捕获响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(next http.Handler, recorder RequestRecorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		recorder.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
