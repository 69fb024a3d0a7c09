package quota

import "time"

// Config provides the per-printer directives the engine needs. The shared
// configuration package implements it from the config file; tests use the
// static Settings type below.
type Config interface {
	// PrinterPolicy is the stance on users without a quota record.
	PrinterPolicy(printer string) Policy
	// PrinterEnforcement selects strict or laxist estimate handling.
	PrinterEnforcement(printer string) Enforcement
	// GraceDelay is how long printing stays allowed past the soft limit.
	GraceDelay(printer string) time.Duration
	// PoorMan is the balance under which users get a warning.
	PoorMan() float64
	// BalanceZero is the balance at or under which printing is denied.
	BalanceZero() float64
	// Coefficients is the printer's ink channel cost multiplier table.
	// Channels absent from the table count with a coefficient of 1.
	Coefficients(printer string) map[string]float64
	// MaxJobSize is the global page ceiling; ok is false when unlimited.
	MaxJobSize(printer string) (pages int, ok bool)
}

// Settings is a static Config.
type Settings struct {
	Policies     map[string]Policy      // by printer; DefaultPolicy otherwise
	Enforcements map[string]Enforcement // by printer; DefaultEnforcement otherwise
	Grace        time.Duration
	PoorThresh   float64
	ZeroPoint    float64
	InkCoefs     map[string]map[string]float64 // printer -> channel -> coef
	JobSizeLimit int                           // 0 = unlimited

	DefaultPolicy      Policy
	DefaultEnforcement Enforcement
}

// DefaultSettings mirrors the stock configuration: allow unknown users,
// laxist enforcement, one week of grace, warn under 1 credit, deny at zero.
func DefaultSettings() *Settings {
	return &Settings{
		Grace:              7 * 24 * time.Hour,
		PoorThresh:         1.0,
		ZeroPoint:          0.0,
		DefaultPolicy:      PolicyAllow,
		DefaultEnforcement: EnforcementLaxist,
	}
}

func (s *Settings) PrinterPolicy(printer string) Policy {
	if p, ok := s.Policies[printer]; ok {
		return p
	}
	if s.DefaultPolicy != "" {
		return s.DefaultPolicy
	}
	return PolicyAllow
}

func (s *Settings) PrinterEnforcement(printer string) Enforcement {
	if e, ok := s.Enforcements[printer]; ok {
		return e
	}
	if s.DefaultEnforcement != "" {
		return s.DefaultEnforcement
	}
	return EnforcementLaxist
}

func (s *Settings) GraceDelay(string) time.Duration { return s.Grace }

func (s *Settings) PoorMan() float64 { return s.PoorThresh }

func (s *Settings) BalanceZero() float64 { return s.ZeroPoint }

func (s *Settings) Coefficients(printer string) map[string]float64 {
	return s.InkCoefs[printer]
}

func (s *Settings) MaxJobSize(string) (int, bool) {
	if s.JobSizeLimit <= 0 {
		return 0, false
	}
	return s.JobSizeLimit, true
}
