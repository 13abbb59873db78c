package services

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/jstittsworth/lineup-engine/internal/models"
	"github.com/jstittsworth/lineup-engine/pkg/config"
)

// AlertService sends SMS notifications about batch run outcomes via Twilio.
// When alerts are disabled or Twilio credentials are missing the service is
// inert and every Notify call is a no-op.
type AlertService struct {
	client         *twilio.RestClient
	fromNumber     string
	toNumber       string
	logger         *logrus.Logger
	circuitBreaker CircuitBreaker
	rateLimiter    RateLimiter
	enabled        bool
}

// CircuitBreaker interface for handling external service failures
type CircuitBreaker interface {
	State() string
	RecordSuccess()
	RecordFailure()
	Allow() bool
}

// RateLimiter interface for SMS rate limiting
type RateLimiter interface {
	Allow(phoneNumber string) error
}

// Simple in-memory circuit breaker implementation
type simpleCircuitBreaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	threshold   int
	timeout     time.Duration
	state       string // "closed", "open", "half-open"
}

func newSimpleCircuitBreaker(threshold int, timeout time.Duration) *simpleCircuitBreaker {
	return &simpleCircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		state:     "closed",
	}
}

func (cb *simpleCircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

// stateLocked transitions open to half-open after the timeout. Callers hold mu.
func (cb *simpleCircuitBreaker) stateLocked() string {
	if cb.state == "open" && time.Since(cb.lastFailure) > cb.timeout {
		cb.state = "half-open"
	}
	return cb.state
}

func (cb *simpleCircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked() != "open"
}

func (cb *simpleCircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = "closed"
}

func (cb *simpleCircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.failures >= cb.threshold {
		cb.state = "open"
	}
}

// AlertRateLimiter implements sliding-window rate limiting per destination number
type AlertRateLimiter struct {
	mu          sync.RWMutex
	requests    map[string][]time.Time
	maxRequests int
	window      time.Duration
}

// NewAlertRateLimiter creates a new alert rate limiter
// maxRequests: maximum number of messages per window
// window: time window for rate limiting (e.g., 1 hour)
func NewAlertRateLimiter(maxRequests int, window time.Duration) *AlertRateLimiter {
	return &AlertRateLimiter{
		requests:    make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow checks if a message is allowed for the given phone number
func (rl *AlertRateLimiter) Allow(phoneNumber string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.cleanupOldRequests(phoneNumber, now)

	if len(rl.requests[phoneNumber]) >= rl.maxRequests {
		return fmt.Errorf("rate limit exceeded: maximum %d SMS per %v", rl.maxRequests, rl.window)
	}

	rl.requests[phoneNumber] = append(rl.requests[phoneNumber], now)
	return nil
}

// cleanupOldRequests removes requests outside the time window
func (rl *AlertRateLimiter) cleanupOldRequests(phoneNumber string, now time.Time) {
	requests, exists := rl.requests[phoneNumber]
	if !exists {
		return
	}

	cutoff := now.Add(-rl.window)
	validRequests := make([]time.Time, 0, len(requests))
	for _, req := range requests {
		if req.After(cutoff) {
			validRequests = append(validRequests, req)
		}
	}

	if len(validRequests) == 0 {
		delete(rl.requests, phoneNumber)
	} else {
		rl.requests[phoneNumber] = validRequests
	}
}

// GetStats returns rate limiter statistics
func (rl *AlertRateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"tracked_numbers": len(rl.requests),
		"max_requests":    rl.maxRequests,
		"window":          rl.window.String(),
	}
}

// Reset clears all rate limiting data
func (rl *AlertRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.requests = make(map[string][]time.Time)
}

// NewAlertService creates the Twilio-backed alert service. Returns a disabled
// service when alerts are off or credentials are incomplete.
func NewAlertService(cfg *config.Config, logger *logrus.Logger) *AlertService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	svc := &AlertService{
		logger:         logger,
		circuitBreaker: newSimpleCircuitBreaker(5, 30*time.Second), // 5 failures, 30s timeout
		rateLimiter:    NewAlertRateLimiter(cfg.SMSRateLimit, cfg.SMSRateWindow),
	}

	if !cfg.AlertsEnabled {
		logger.Info("📴 Alerts: disabled by configuration")
		return svc
	}
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" || cfg.AlertPhoneNumber == "" {
		logger.Warn("📴 Alerts: enabled but Twilio credentials incomplete, alerts will be skipped")
		return svc
	}

	svc.client = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	svc.fromNumber = cfg.TwilioFromNumber
	svc.toNumber = cfg.AlertPhoneNumber
	svc.enabled = true

	logger.WithFields(logrus.Fields{
		"from": cfg.TwilioFromNumber,
		"to":   cfg.AlertPhoneNumber,
	}).Info("📨 Alerts: Twilio SMS notifications enabled")

	return svc
}

// Enabled reports whether the service will actually send messages.
func (s *AlertService) Enabled() bool {
	return s.enabled
}

// NotifyRunCompleted sends a summary SMS for a finished batch run.
func (s *AlertService) NotifyRunCompleted(run *models.OptimizationRun) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf("Lineup run %s completed: %d built, %d skipped (strategy: %s)",
		shortRunID(run), run.BuiltCount, run.SkippedCount, run.Strategy)
	if len(run.Warnings) > 0 {
		message += fmt.Sprintf("\n%d warning(s): %s", len(run.Warnings), run.Warnings[0])
	}

	return s.sendSMS(message)
}

// NotifyRunFailed sends an SMS when a batch run errors out.
func (s *AlertService) NotifyRunFailed(run *models.OptimizationRun, cause string) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf("Lineup run %s FAILED (strategy: %s): %s",
		shortRunID(run), run.Strategy, cause)
	return s.sendSMS(message)
}

// NotifyImportFailed sends an SMS when a slate import is rejected.
func (s *AlertService) NotifyImportFailed(slateName, cause string) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf("Slate import %q FAILED: %s", slateName, cause)
	return s.sendSMS(message)
}

func shortRunID(run *models.OptimizationRun) string {
	id := run.ID.String()
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// sendSMS sends an SMS message via Twilio
func (s *AlertService) sendSMS(message string) error {
	// Check circuit breaker
	if !s.circuitBreaker.Allow() {
		s.logger.Warn("❌ Alerts: circuit breaker is open, rejecting request")
		return fmt.Errorf("SMS service temporarily unavailable")
	}

	// Validate phone number format (E.164)
	normalizedNumber, err := NormalizePhoneNumber(s.toNumber)
	if err != nil {
		return fmt.Errorf("invalid phone number format: %w", err)
	}

	// Check rate limiting
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Allow(normalizedNumber); err != nil {
			s.logger.WithField("to", normalizedNumber).Warn("⚠️ Alerts: rate limited")
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	// Prepare Twilio API request
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(normalizedNumber)
	params.SetFrom(s.fromNumber)
	params.SetBody(message)

	s.logger.WithField("to", normalizedNumber).Debug("📨 Alerts: sending SMS")

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		s.circuitBreaker.RecordFailure()
		s.logger.WithError(err).Error("❌ Alerts: Twilio API error")
		return s.mapTwilioError(err)
	}

	s.circuitBreaker.RecordSuccess()

	if resp.Sid != nil {
		s.logger.WithField("sid", *resp.Sid).Info("✅ Alerts: SMS sent")
	} else {
		s.logger.Info("✅ Alerts: SMS sent")
	}

	return nil
}

// NormalizePhoneNumber ensures a phone number is in E.164 format
func NormalizePhoneNumber(phone string) (string, error) {
	// Remove all non-digit characters except +
	re := regexp.MustCompile(`[^\d+]`)
	cleaned := re.ReplaceAllString(phone, "")

	// Add + if not present
	if !regexp.MustCompile(`^\+`).MatchString(cleaned) {
		// Assume US number if no country code
		if regexp.MustCompile(`^\d{10}$`).MatchString(cleaned) {
			cleaned = "+1" + cleaned
		} else {
			return "", fmt.Errorf("invalid phone number format")
		}
	}

	// Validate E.164 format
	if !regexp.MustCompile(`^\+[1-9]\d{1,14}$`).MatchString(cleaned) {
		return "", fmt.Errorf("invalid phone number format")
	}

	return cleaned, nil
}

// mapTwilioError maps Twilio-specific errors to user-friendly messages
func (s *AlertService) mapTwilioError(err error) error {
	errStr := err.Error()

	switch {
	case regexp.MustCompile(`(?i)invalid.*phone.*number`).MatchString(errStr):
		return fmt.Errorf("invalid phone number")
	case regexp.MustCompile(`(?i)unverified.*number`).MatchString(errStr):
		return fmt.Errorf("phone number not verified for trial account")
	case regexp.MustCompile(`(?i)insufficient.*funds`).MatchString(errStr):
		return fmt.Errorf("SMS service temporarily unavailable")
	case regexp.MustCompile(`(?i)rate.*limit`).MatchString(errStr):
		return fmt.Errorf("too many SMS requests, please try again later")
	case regexp.MustCompile(`(?i)blocked.*number`).MatchString(errStr):
		return fmt.Errorf("unable to send SMS to this number")
	default:
		return fmt.Errorf("failed to send SMS: %w", err)
	}
}

// GetStats returns circuit breaker and service statistics
func (s *AlertService) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"enabled":               s.enabled,
		"circuit_breaker_state": s.circuitBreaker.State(),
		"service_type":          "twilio",
	}
}
