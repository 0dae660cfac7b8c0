// Package attribution defines the identity and purchase entities that tie revenue back to
// the marketing touchpoint that originated it.
package attribution

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Touch is one attribution snapshot: where a visitor came from at a given moment.
type Touch struct {
	Source      string    `json:"source"`
	Medium      string    `json:"medium"`
	Campaign    string    `json:"campaign"`
	Content     string    `json:"content"`
	Term        string    `json:"term"`
	Referrer    string    `json:"referrer"`
	LandingPage string    `json:"landingPage"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// Visitor is the identity anchor for a browsing entity. FirstTouch is written once at creation.
type Visitor struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"accountId"`
	VisitorToken string    `json:"visitorToken"`
	Email        *string   `json:"email,omitempty"`
	FirstTouch   Touch     `json:"firstTouch"`
	Fingerprint  *string   `json:"fingerprint,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is one immutable browsing session for a visitor.
type Session struct {
	ID           string    `json:"id"`
	VisitorID    string    `json:"visitorId"`
	SessionToken string    `json:"sessionToken"`
	Source       string    `json:"source"`
	Medium       string    `json:"medium"`
	Campaign     string    `json:"campaign"`
	Content      string    `json:"content"`
	Term         string    `json:"term"`
	Referrer     string    `json:"referrer"`
	LandingPage  string    `json:"landingPage"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Touch returns the session's attribution as a snapshot.
func (s *Session) Touch() Touch {
	return Touch{
		Source:      s.Source,
		Medium:      s.Medium,
		Campaign:    s.Campaign,
		Content:     s.Content,
		Term:        s.Term,
		Referrer:    s.Referrer,
		LandingPage: s.LandingPage,
		CapturedAt:  s.OccurredAt,
	}
}

// Status records whether a purchase could be tied to a visitor.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusUnmatched Status = "unmatched"
	StatusPending   Status = "pending"
)

// Platform identifies the course platform a purchase was ingested from.
type Platform string

const (
	PlatformTeachable Platform = "teachable"
	PlatformKajabi    Platform = "kajabi"
	PlatformThinkific Platform = "thinkific"
	PlatformPodia     Platform = "podia"
	PlatformGumroad   Platform = "gumroad"
	PlatformStripe    Platform = "stripe"
	PlatformManual    Platform = "manual"
)

var knownPlatforms = map[Platform]bool{
	PlatformTeachable: true,
	PlatformKajabi:    true,
	PlatformThinkific: true,
	PlatformPodia:     true,
	PlatformGumroad:   true,
	PlatformStripe:    true,
	PlatformManual:    true,
}

// ParsePlatform validates a platform name case-insensitively.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	return p, knownPlatforms[p]
}

// Purchase is a monetized event. Touches are denormalized copies taken at attribution time.
type Purchase struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"accountId"`
	VisitorID          *string         `json:"visitorId,omitempty"`
	LaunchID           *string         `json:"launchId,omitempty"`
	Email              string          `json:"email"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	CourseName         string          `json:"courseName"`
	Platform           Platform        `json:"platform"`
	PlatformPurchaseID string          `json:"platformPurchaseId"`
	FirstTouch         *Touch          `json:"firstTouch,omitempty"`
	LastTouch          *Touch          `json:"lastTouch,omitempty"`
	Status             Status          `json:"attributionStatus"`
	PurchasedAt        time.Time       `json:"purchasedAt"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Match links the purchase to a visitor. Status is matched iff a visitor is set.
func (p *Purchase) Match(visitorID string, first, last Touch) {
	p.VisitorID = &visitorID
	p.FirstTouch = &first
	p.LastTouch = &last
	p.Status = StatusMatched
}

// Unmatch clears every attribution field.
func (p *Purchase) Unmatch() {
	p.VisitorID = nil
	p.FirstTouch = nil
	p.LastTouch = nil
	p.Status = StatusUnmatched
}

// NormalizedPurchase is what platform integrations hand over after verifying their webhooks.
type NormalizedPurchase struct {
	Email              string          `json:"email" binding:"required"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency,omitempty"`
	CourseName         string          `json:"courseName,omitempty"`
	Platform           string          `json:"platform" binding:"required"`
	PlatformPurchaseID string          `json:"platformPurchaseId" binding:"required"`
	PurchasedAt        time.Time       `json:"purchasedAt" binding:"required"`
	DeviceFingerprint  string          `json:"deviceFingerprint,omitempty"`
}

// MatchMethod tells how a visitor was found.
type MatchMethod string

const (
	MatchByEmail       MatchMethod = "email"
	MatchByFingerprint MatchMethod = "fingerprint"
	MatchExisting      MatchMethod = "existing" // redelivery of an already matched purchase
	MatchNone          MatchMethod = "none"
)

// Result is the outcome of attributing one purchase.
type Result struct {
	PurchaseID string      `json:"purchaseId"`
	Status     Status      `json:"status"`
	Method     MatchMethod `json:"method"`
	VisitorID  *string     `json:"visitorId,omitempty"`
	FirstTouch *Touch      `json:"firstTouch,omitempty"`
	LastTouch  *Touch      `json:"lastTouch,omitempty"`
	LaunchID   *string     `json:"launchId,omitempty"`
}

// ReattributeOutcome is the terminal state of a re-attribution attempt.
type ReattributeOutcome string

const (
	ReattributeMatched        ReattributeOutcome = "matched"
	ReattributeStillUnmatched ReattributeOutcome = "still_unmatched"
)

// ReattributeResult is returned by a single re-attribution.
type ReattributeResult struct {
	PurchaseID string             `json:"purchaseId"`
	Outcome    ReattributeOutcome `json:"outcome"`
	VisitorID  *string            `json:"visitorId,omitempty"`
	FirstTouch *Touch             `json:"firstTouch,omitempty"`
	LastTouch  *Touch             `json:"lastTouch,omitempty"`
}

// VisitEvent is one tracking hit handed over by the ingestion layer.
type VisitEvent struct {
	VisitorToken string    `json:"visitorToken" binding:"required"`
	SessionToken string    `json:"sessionToken" binding:"required"`
	Source       string    `json:"source"`
	Medium       string    `json:"medium"`
	Campaign     string    `json:"campaign"`
	Content      string    `json:"content"`
	Term         string    `json:"term"`
	Referrer     string    `json:"referrer"`
	LandingPage  string    `json:"landingPage"`
	Fingerprint  string    `json:"fingerprint,omitempty"`
	Email        string    `json:"email,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Touch returns the event's attribution as a snapshot.
func (e *VisitEvent) Touch() Touch {
	return Touch{
		Source:      e.Source,
		Medium:      e.Medium,
		Campaign:    e.Campaign,
		Content:     e.Content,
		Term:        e.Term,
		Referrer:    e.Referrer,
		LandingPage: e.LandingPage,
		CapturedAt:  e.OccurredAt,
	}
}

// NormalizeEmail trims and lower-cases an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
