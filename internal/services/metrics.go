package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mobilespo/internal/models"
)

// Metrics holds all custom Prometheus metrics for the application.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// USSD metrics
	UssdRequests *prometheus.CounterVec

	// Emergency metrics
	EmergencyDetections *prometheus.CounterVec
	Notifications       *prometheus.CounterVec

	// Chat metrics
	ChatRequests       prometheus.Counter
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics. activeSessions reports the
// live USSD session count and may be nil.
func InitMetrics(connManager *ConnectionManager, activeSessions func() int) *Metrics {
	metrics := &Metrics{
		UssdRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilespo_ussd_requests_total",
			Help: "Total number of USSD gateway turns by response type",
		}, []string{"type"}),

		EmergencyDetections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilespo_emergency_detections_total",
			Help: "Total number of escalated emergencies by level and source channel",
		}, []string{"level", "source"}),

		Notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilespo_notifications_total",
			Help: "Total number of notification attempts by channel and outcome",
		}, []string{"channel", "outcome"}), // outcome: "delivered" or "failed"

		ChatRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mobilespo_chat_requests_total",
			Help: "Total number of chat requests processed",
		}),

		ChatRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mobilespo_chat_request_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),

		ChatErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilespo_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),

		WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mobilespo_websocket_connections_active",
			Help: "Number of active notification WebSocket connections",
		}),
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mobilespo_websocket_connections_current",
			Help: "Current number of active WebSocket connections (from connection manager)",
		},
		func() float64 {
			if connManager != nil {
				return float64(connManager.Count())
			}
			return 0
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mobilespo_ussd_sessions_active",
			Help: "Number of live USSD sessions in the session store",
		},
		func() float64 {
			if activeSessions != nil {
				return float64(activeSessions())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordUssdRequest records one USSD turn
func (m *Metrics) RecordUssdRequest(responseType models.UssdResponseType) {
	if m == nil {
		return
	}
	m.UssdRequests.WithLabelValues(string(responseType)).Inc()
}

// RecordEmergency records an escalated emergency
func (m *Metrics) RecordEmergency(level models.EmergencyLevel, source models.NotificationChannel) {
	if m == nil {
		return
	}
	m.EmergencyDetections.WithLabelValues(string(level), string(source)).Inc()
}

// RecordNotification records a notification attempt
func (m *Metrics) RecordNotification(channel models.NotificationChannel, delivered bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	m.Notifications.WithLabelValues(string(channel), outcome).Inc()
}

// RecordWebSocketConnect records a new WebSocket connection
func (m *Metrics) RecordWebSocketConnect() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Inc()
}

// RecordWebSocketDisconnect records a WebSocket disconnection
func (m *Metrics) RecordWebSocketDisconnect() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Dec()
}

// RecordChatRequest records a chat request
func (m *Metrics) RecordChatRequest() {
	if m == nil {
		return
	}
	m.ChatRequests.Inc()
}

// RecordChatLatency records chat request latency
func (m *Metrics) RecordChatLatency(seconds float64) {
	if m == nil {
		return
	}
	m.ChatRequestLatency.Observe(seconds)
}

// RecordChatError records a chat error
func (m *Metrics) RecordChatError(errorType string) {
	if m == nil {
		return
	}
	m.ChatErrors.WithLabelValues(errorType).Inc()
}
