// Package metrics - Prometheus-метрики шлюза и рассылки уведомлений.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Open websocket connections",
		},
	)
	onlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_users",
			Help: "Users with at least one open connection",
		},
	)
	gatewayEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_gateway_events_total",
			Help: "Client events handled by the gateway",
		},
		[]string{"event", "result"},
	)
	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_gateway_rate_limited_total",
			Help: "Client events dropped by the per-connection rate limiter",
		},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notification_deliveries_total",
			Help: "Notification delivery attempts per channel",
		},
		[]string{"channel", "status"},
	)
	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_notification_delivery_duration_seconds",
			Help:    "Duration of a single channel delivery",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"channel"},
	)
	replyMappingsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_reply_mappings_swept_total",
			Help: "Expired reply mappings deleted by the sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(
		wsConnections,
		onlineUsers,
		gatewayEvents,
		rateLimited,
		deliveries,
		deliveryDuration,
		replyMappingsSwept,
	)
}

func ConnectionOpened() {
	wsConnections.Inc()
}

func ConnectionClosed() {
	wsConnections.Dec()
}

func SetOnlineUsers(n int) {
	onlineUsers.Set(float64(n))
}

// GatewayEvent учитывает обработанное событие клиента (result: ok|error|ignored)
func GatewayEvent(event, result string) {
	gatewayEvents.WithLabelValues(event, result).Inc()
}

func RateLimited() {
	rateLimited.Inc()
}

// Delivery учитывает одну попытку доставки по каналу
func Delivery(channel string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	deliveries.WithLabelValues(channel, status).Inc()
	deliveryDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func ReplyMappingsSwept(n int64) {
	replyMappingsSwept.Add(float64(n))
}

// Handler отдает метрики в формате Prometheus
func Handler() http.Handler {
	return promhttp.Handler()
}
