package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/containrrr/shoutrrr"

	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/util"
)

// alertActions are the audit actions forwarded to external alert channels.
var alertActions = map[string]bool{
	AuditRateLimitCritical: true,
	AuditAutoBlock:         true,
}

// AlertService forwards security events to shoutrrr URLs. Delivery is
// asynchronous and best effort.
type AlertService struct {
	urls []string
	send func(url, message string) error
	wg   sync.WaitGroup
}

// NewAlertService returns an AlertService sending to urls.
func NewAlertService(urls []string) *AlertService {
	return &AlertService{urls: urls, send: shoutrrr.Send}
}

// Enabled reports whether any alert URL is configured.
func (s *AlertService) Enabled() bool {
	return len(s.urls) > 0
}

// Record implements AuditSink.
func (s *AlertService) Record(_ context.Context, ev AuditEvent) {
	if !s.Enabled() || !alertActions[ev.Action] {
		return
	}
	msg := FormatAlert(ev)
	for _, u := range s.urls {
		s.wg.Add(1)
		go func(url string) {
			defer s.wg.Done()
			if err := s.send(url, msg); err != nil {
				logger.Log().WithError(err).WithField("action", ev.Action).Warn("Failed to send security alert")
			}
		}(u)
	}
}

// Wait blocks until in-flight alerts have been delivered or failed.
func (s *AlertService) Wait() {
	s.wg.Wait()
}

// FormatAlert renders ev as a chat-friendly message.
func FormatAlert(ev AuditEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Warden security alert: %s\n\n", ev.Action)
	if ev.IPAddress != "" {
		fmt.Fprintf(&b, "IP: %s\n", ev.IPAddress)
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, util.SanitizeForLog(fmt.Sprint(ev.Fields[k])))
	}
	return strings.TrimRight(b.String(), "\n")
}
