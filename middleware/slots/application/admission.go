package application

import (
	"time"

	"slot-gateway/middleware/slots/domain"
)

// AdmissionService decide se um cliente pode pedir um slot agora.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type AdmissionService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s AdmissionService) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	retry := s.RetryAfter
	if retry <= 0 {
		retry = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}
