//
//  Copyright © Trustline Inc. All rights reserved.
//

// Package model defines the core data structures for login decision
// evaluation.
//
// Every entity here is created once per request or per ledger append and is
// never mutated after construction. The [InputContext] is the immutable
// case file that flows through the evaluation pipeline; evaluator outputs
// and the [FinalDecision] are owned by the decision flow and passed by
// value downstream.
package model

import (
	"time"
)

// AuthMethod enumerates the supported authentication methods.
type AuthMethod string

// Authentication methods, in feature-vector order.
const (
	AuthPassword  AuthMethod = "password"
	AuthMFA       AuthMethod = "mfa"
	AuthSSO       AuthMethod = "sso"
	AuthBiometric AuthMethod = "biometric"
)

// AuthMethods lists the methods in their canonical one-hot order.
var AuthMethods = []AuthMethod{AuthPassword, AuthMFA, AuthSSO, AuthBiometric}

// DeviceType enumerates the supported device classes.
type DeviceType string

// Device classes, in one-hot order.
const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// DeviceTypes lists the classes in their canonical one-hot order.
var DeviceTypes = []DeviceType{DeviceDesktop, DeviceMobile, DeviceTablet}

// Action is the decision emitted for an authentication event. BLOCK is
// always temporary; permanent blocks are human-only.
type Action string

// The enumerated action set. The engine never decides outside it.
const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE"
	ActionBlock     Action = "BLOCK"
	ActionEscalate  Action = "ESCALATE"
)

// DecidedBy identifies who holds authority for a decision.
type DecidedBy string

// Decision authorities.
const (
	DecidedByAI    DecidedBy = "AI"
	DecidedByHuman DecidedBy = "HUMAN_REQUIRED"
)

// Permission is the calibrator's gate on automated decision-making.
type Permission string

// Decision permissions.
const (
	PermissionAIAllowed     Permission = "AI_ALLOWED"
	PermissionHumanRequired Permission = "HUMAN_REQUIRED"
)

// EscalationReason is the typed reason attached to an escalation. The four
// values below are the authoritative set.
type EscalationReason string

// Escalation reasons.
const (
	ReasonLowConfidence    EscalationReason = "LOW_CONFIDENCE"
	ReasonHighDisagreement EscalationReason = "HIGH_DISAGREEMENT"
	ReasonPolicyOverride   EscalationReason = "POLICY_OVERRIDE"
	ReasonAgentFailure     EscalationReason = "AGENT_FAILURE"
)

// GeoLocation is a resolved session location.
type GeoLocation struct {
	City      string  `json:"city"`
	Country   string  `json:"country"` // ISO-3166 alpha-2
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LoginEvent describes a single authentication attempt.
type LoginEvent struct {
	EventID                  string     `json:"event_id"`
	Timestamp                time.Time  `json:"timestamp"`
	UserID                   string     `json:"user_id"`
	SessionID                string     `json:"session_id"`
	Success                  bool       `json:"success"`
	AuthMethod               AuthMethod `json:"auth_method"`
	FailedAttemptsBefore     int        `json:"failed_attempts_before"`
	TimeSinceLastLoginHours  *float64   `json:"time_since_last_login_hours,omitempty"`
	IsNewDevice              bool       `json:"is_new_device"`
	IsNewIP                  bool       `json:"is_new_ip"`
	IsNewLocation            bool       `json:"is_new_location"`
}

// Session describes the network session the login arrived on.
type Session struct {
	SessionID   string      `json:"session_id"`
	DeviceID    string      `json:"device_id"`
	IPAddress   string      `json:"ip_address"`
	GeoLocation GeoLocation `json:"geo_location"`
	StartTime   time.Time   `json:"start_time"`
	IsVPN       bool        `json:"is_vpn"`
	IsTor       bool        `json:"is_tor"`
}

// Device describes the client device.
type Device struct {
	DeviceID    string     `json:"device_id"`
	DeviceType  DeviceType `json:"device_type"`
	OS          string     `json:"os"`
	Browser     string     `json:"browser"`
	IsKnown     bool       `json:"is_known"`
	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`
}

// User describes the account under evaluation. The typical login hour pair
// may wrap (end < start), denoting an overnight window.
type User struct {
	UserID                string `json:"user_id"`
	AccountAgeDays        int    `json:"account_age_days"`
	HomeCountry           string `json:"home_country"`
	HomeCity              string `json:"home_city"`
	TypicalLoginHourStart int    `json:"typical_login_hour_start"`
	TypicalLoginHourEnd   int    `json:"typical_login_hour_end"`
}

// InputContext bundles the validated inputs for one authentication event.
// It is owned exclusively by the single request and is never mutated.
type InputContext struct {
	Login   LoginEvent `json:"login_event"`
	Session Session    `json:"session"`
	Device  Device     `json:"device"`
	User    User       `json:"user"`
}

// RiskEvaluation is the risk evaluator's output.
type RiskEvaluation struct {
	RiskScore   float64  `json:"risk_score"`
	RiskFactors []string `json:"risk_factors"`
}

// BehaviorEvaluation is the behavior evaluator's output.
// MatchScore = 1 - anomaly score.
type BehaviorEvaluation struct {
	MatchScore float64  `json:"match_score"`
	Deviations []string `json:"deviations"`
}

// NetworkEvaluation is the network evaluator's output. Evidence-only; it
// never concludes fraud.
type NetworkEvaluation struct {
	NetworkRisk float64  `json:"network_risk"`
	Evidence    []string `json:"evidence"`
}

// CalibrationBreakdown records each step of the confidence calibration
// pipeline for audit and debugging.
type CalibrationBreakdown struct {
	Raw                    float64 `json:"raw"`
	OverconfidencePenalty  float64 `json:"overconfidence_penalty"`
	DisagreementAdjustment float64 `json:"disagreement_adjustment"`
	EvidencePenalty        float64 `json:"evidence_penalty"`
	EscalationNudge        float64 `json:"escalation_nudge"`
	Final                  float64 `json:"final"`
}

// ConfidenceVerdict is the calibrator's output: the calibrated confidence
// and whether the system is permitted to decide.
type ConfidenceVerdict struct {
	FinalConfidence  float64              `json:"final_confidence"`
	Permission       Permission           `json:"permission"`
	Disagreement     float64              `json:"disagreement"`
	Breakdown        CalibrationBreakdown `json:"calibration_breakdown"`
	EscalationReason EscalationReason     `json:"escalation_reason,omitempty"`
}

// FinalDecision is the terminal artifact of one evaluation.
type FinalDecision struct {
	DecisionID    string    `json:"decision_id"`
	Timestamp     time.Time `json:"timestamp"`
	Action        Action    `json:"action"`
	DecidedBy     DecidedBy `json:"decided_by"`
	Confidence    float64   `json:"confidence"`
	Explanation   string    `json:"explanation"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	RiskScore     float64   `json:"risk_score"`
	BehaviorScore float64   `json:"behavior_score"`
	NetworkScore  float64   `json:"network_score"`
	Disagreement  float64   `json:"disagreement"`
}

// EscalationCase carries the facts of a refused decision to a human
// reviewer. Facts only; no recommendation.
type EscalationCase struct {
	CaseID      string           `json:"case_id"`
	CreatedAt   time.Time        `json:"created_at"`
	Reason      EscalationReason `json:"reason"`
	SessionID   string           `json:"session_id"`
	UserID      string           `json:"user_id"`
	RiskFactors []string         `json:"risk_factors"`
	Deviations  []string         `json:"deviations"`
	Evidence    []string         `json:"evidence"`
	Summary     string           `json:"summary"`
}

// Response is the external response shape: exactly these five fields and
// nothing else. Internal scores, factor tags, and agent identities are
// never exposed.
type Response struct {
	Decision       Action  `json:"decision"`
	Confidence     float64 `json:"confidence"`
	Explanation    string  `json:"explanation"`
	EscalationFlag bool    `json:"escalation_flag"`
	AuditID        string  `json:"audit_id"`
}
