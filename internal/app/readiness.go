package app

import "context"

type Check struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Readiness is reported by /api/ready. Only required checks decide OK; the
// search backend and snapshot capture degrade without taking the API down.
type Readiness struct {
	OK     bool             `json:"ok"`
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

type pinger interface {
	Ping(context.Context) error
}

func (s *Service) Readiness(ctx context.Context) Readiness {
	report := Readiness{OK: true, Checks: map[string]Check{}}
	required := func(name string, err error) {
		if err != nil {
			report.OK = false
			report.Checks[name] = Check{Status: "error", Error: err.Error()}
			return
		}
		report.Checks[name] = Check{Status: "ok"}
	}

	required("database", s.store.Ping(ctx))
	if p, ok := s.idem.(pinger); ok {
		required("idempotency", p.Ping(ctx))
	}
	report.Checks["search"] = Check{Status: s.search.Backend()}
	snapshots := "disabled"
	if s.captureEnabled() {
		snapshots = "enabled"
	}
	report.Checks["snapshots"] = Check{Status: snapshots}

	report.Status = "ready"
	if !report.OK {
		report.Status = "not_ready"
	}
	return report
}
