package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert represents a monitoring alert
type Alert struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Severity    AlertSeverity     `json:"severity"`
	Status      AlertStatus       `json:"status"`
	Service     string            `json:"service"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Value       float64           `json:"value,omitempty"`
	Threshold   float64           `json:"threshold,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	FiredAt     time.Time         `json:"fired_at"`
	LastSentAt  *time.Time        `json:"last_sent_at,omitempty"`
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Query       string
	Threshold   float64
	Operator    string // "gt", "lt", "eq", "ne", "gte", "lte"
	Severity    AlertSeverity
	Service     string
	Description string
	Labels      map[string]string
	Annotations map[string]string
	For         time.Duration
}

// AlertNotifier defines the interface for sending alert notifications
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	WebhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	if s.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SendAlert sends an alert to Slack
func (s *SlackNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf(":rotating_light: [%s] %s on %s: %s (value %.2f, threshold %.2f)",
		alert.Severity, alert.Name, alert.Service, alert.Description, alert.Value, alert.Threshold)

	if err := s.post(ctx, text); err != nil {
		return err
	}

	slog.Info("Slack alert sent", "alert", alert.Name, "severity", alert.Severity)
	return nil
}

// ResolveAlert sends a resolution notification to Slack
func (s *SlackNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf(":white_check_mark: Resolved: %s on %s", alert.Name, alert.Service)

	if err := s.post(ctx, text); err != nil {
		return err
	}

	slog.Info("Slack alert resolved", "alert", alert.Name)
	return nil
}

// AlertManager evaluates alert rules against live metrics and fans out
// notifications.
type AlertManager struct {
	rules         []AlertRule
	alerts        map[string]*Alert
	alertsMutex   sync.RWMutex
	notifiers     []AlertNotifier
	logger        *Logger
	metrics       *Metrics
	checkInterval time.Duration
}

// NewAlertManager creates a new alert manager reading from metrics
func NewAlertManager(logger *Logger, checkInterval time.Duration, metrics *Metrics) *AlertManager {
	return &AlertManager{
		rules:         []AlertRule{},
		alerts:        make(map[string]*Alert),
		notifiers:     []AlertNotifier{},
		logger:        logger,
		metrics:       metrics,
		checkInterval: checkInterval,
	}
}

// AddRule adds an alert rule
func (am *AlertManager) AddRule(rule AlertRule) {
	am.rules = append(am.rules, rule)
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.notifiers = append(am.notifiers, notifier)
}

// Start begins the alert evaluation loop
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.evaluateRules(ctx)
		}
	}
}

func (am *AlertManager) evaluateRules(ctx context.Context) {
	for _, rule := range am.rules {
		am.evaluateRule(ctx, rule)
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	var currentValue float64
	switch rule.Query {
	case "error_rate":
		currentValue = am.getCurrentErrorRate()
	case "response_time":
		currentValue = am.getCurrentResponseTime()
	case "memory_usage":
		currentValue = am.getCurrentMemoryUsage()
	default:
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return
	}

	alertKey := fmt.Sprintf("%s:%s", rule.Service, rule.Name)

	am.alertsMutex.Lock()
	defer am.alertsMutex.Unlock()

	alert, exists := am.alerts[alertKey]
	conditionMet := am.checkCondition(currentValue, rule.Operator, rule.Threshold)

	if conditionMet {
		if !exists {
			alert = &Alert{
				ID:          alertKey,
				Name:        rule.Name,
				Description: rule.Description,
				Severity:    rule.Severity,
				Status:      StatusActive,
				Service:     rule.Service,
				Labels:      rule.Labels,
				Annotations: rule.Annotations,
				Value:       currentValue,
				Threshold:   rule.Threshold,
				CreatedAt:   time.Now(),
				FiredAt:     time.Now(),
			}
			am.alerts[alertKey] = alert
			am.fireAlert(ctx, alert)
		} else if alert.Status != StatusActive {
			alert.Status = StatusActive
			alert.FiredAt = time.Now()
			alert.Value = currentValue
			am.fireAlert(ctx, alert)
		}
	} else if exists && alert.Status == StatusActive {
		// Resolve once the condition has been clear for the rule's window
		if time.Since(alert.FiredAt) > rule.For {
			now := time.Now()
			alert.Status = StatusResolved
			alert.ResolvedAt = &now
			am.resolveAlert(ctx, alert)
		}
	}
}

func (am *AlertManager) checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	case "ne":
		return value != threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

func (am *AlertManager) fireAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.SendAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to send alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

func (am *AlertManager) resolveAlert(ctx context.Context, alert *Alert) {
	am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", alert.Name))

	for _, notifier := range am.notifiers {
		go func(n AlertNotifier) {
			if err := n.ResolveAlert(ctx, alert); err != nil {
				am.logger.SystemLogger("alert_resolution_failed", fmt.Sprintf("Failed to resolve alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// GetAlerts returns all current alerts
func (am *AlertManager) GetAlerts() map[string]*Alert {
	am.alertsMutex.RLock()
	defer am.alertsMutex.RUnlock()

	alerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		alerts[k] = v
	}
	return alerts
}

// GetActiveAlerts returns only active alerts
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.alertsMutex.RLock()
	defer am.alertsMutex.RUnlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			activeAlerts[k] = v
		}
	}
	return activeAlerts
}

// SilenceAlert suppresses an alert
func (am *AlertManager) SilenceAlert(alertID string, duration time.Duration) {
	am.alertsMutex.Lock()
	defer am.alertsMutex.Unlock()

	if alert, exists := am.alerts[alertID]; exists {
		alert.Status = StatusSuppressed
		am.logger.SystemLogger("alert_silenced", fmt.Sprintf("Alert %s silenced for %v", alert.Name, duration))
	}
}

func (am *AlertManager) getCurrentErrorRate() float64 {
	if am.metrics == nil {
		return 0
	}

	requests := atomic.LoadInt64(&am.metrics.RequestCount)
	if requests == 0 {
		return 0
	}
	errors := atomic.LoadInt64(&am.metrics.ErrorCount)
	return float64(errors) / float64(requests) * 100
}

func (am *AlertManager) getCurrentResponseTime() float64 {
	if am.metrics == nil {
		return 0
	}
	return float64(atomic.LoadInt64(&am.metrics.AverageResponseTime)) / 1000000
}

func (am *AlertManager) getCurrentMemoryUsage() float64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	if memStats.HeapSys == 0 {
		return 0
	}
	return float64(memStats.HeapInuse) / float64(memStats.HeapSys) * 100
}

// DefaultAlertRules are the rules installed at startup
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       "error_rate",
		Threshold:   10.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "Error rate is above 10%",
		For:         5 * time.Minute,
		Labels: map[string]string{
			"team": "backend",
		},
		Annotations: map[string]string{
			"summary":     "High error rate detected",
			"description": "The error rate for the screening API is above 10% for the last 5 minutes",
		},
	},
	{
		Name:        "SlowResponseTime",
		Query:       "response_time",
		Threshold:   1000.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Service:     "api",
		Description: "Response time is above 1000ms",
		For:         2 * time.Minute,
		Labels: map[string]string{
			"team": "backend",
		},
		Annotations: map[string]string{
			"summary":     "Slow response time detected",
			"description": "The average response time is above 1000ms for the last 2 minutes",
		},
	},
	{
		Name:        "HighMemoryUsage",
		Query:       "memory_usage",
		Threshold:   90.0,
		Operator:    "gt",
		Severity:    SeverityCritical,
		Service:     "system",
		Description: "Heap usage is above 90%",
		For:         1 * time.Minute,
		Labels: map[string]string{
			"team": "platform",
		},
		Annotations: map[string]string{
			"summary":     "High memory usage detected",
			"description": "Heap usage is above 90% for the last minute",
		},
	},
}

// Global alert manager instance
var globalAlertManager *AlertManager

// InitGlobalAlertManager initializes the global alert manager
func InitGlobalAlertManager(logger *Logger, checkInterval time.Duration, metrics *Metrics) {
	globalAlertManager = NewAlertManager(logger, checkInterval, metrics)

	for _, rule := range DefaultAlertRules {
		globalAlertManager.AddRule(rule)
	}
}

// GetGlobalAlertManager returns the global alert manager
func GetGlobalAlertManager() *AlertManager {
	return globalAlertManager
}

// StartGlobalAlerting starts the global alert manager
func StartGlobalAlerting(ctx context.Context) {
	if globalAlertManager != nil {
		go globalAlertManager.Start(ctx)
	}
}
