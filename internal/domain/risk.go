package domain

import "time"

// RiskRule identifies which limit rejected a signal. Rules are evaluated in
// the order listed here; a rejection carries the first rule that failed.
type RiskRule string

const (
	RulePerTradeCap  RiskRule = "per_trade_cap"
	RulePerStrikeCap RiskRule = "per_strike_cap"
	RulePerEventCap  RiskRule = "per_event_cap"
	RuleTotalCap     RiskRule = "total_exposure_cap"
	RuleCashBuffer   RiskRule = "cash_buffer"
	RuleDailyLoss    RiskRule = "daily_loss_halt"
	RuleWeeklyLoss   RiskRule = "weekly_loss_halt"
	RuleKillSwitch   RiskRule = "kill_switch"
)

// Rejection records a signal turned away by the risk gate.
type Rejection struct {
	SignalID string
	Ticker   string
	Strategy string
	Rule     RiskRule
	Detail   string
	At       time.Time
}

// RiskEvent is an operational risk occurrence worth persisting: rejections,
// kill-switch trips, leg failures, ledger drift.
type RiskEvent struct {
	ID     int64
	Kind   string // "rejection", "kill_switch", "leg_failure", "ledger_drift", "flatten_all"
	Ticker string
	Detail map[string]any
	At     time.Time
}
