package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/botfleet/creditcore/pkg/money"
)

// Credit-type reasons, closed set per spec.md §3.
const (
	TypeSignupGrant       = "signup_grant"
	TypePurchase          = "purchase"
	TypeBounty            = "bounty"
	TypeReferral          = "referral"
	TypePromo             = "promo"
	TypeCommunityDividend = "community_dividend"
	TypeAffiliateBonus    = "affiliate_bonus"
	TypeAffiliateMatch    = "affiliate_match"
)

// Debit-type reasons, closed set per spec.md §3.
const (
	TypeBotRuntime     = "bot_runtime"
	TypeAdapterUsage   = "adapter_usage"
	TypeAddon          = "addon"
	TypeRefund         = "refund"
	TypeCorrection     = "correction"
	TypeResourceUpgrade = "resource_upgrade"
	TypeStorageUpgrade  = "storage_upgrade"
	TypeOnboardingLLM   = "onboarding_llm"
)

// Balance is the single current-balance row for a tenant.
type Balance struct {
	TenantID    uuid.UUID
	Amount      money.Amount
	LastUpdated time.Time
}

// Transaction is one immutable, append-only ledger entry.
type Transaction struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Amount           money.Amount // signed; positive = credit, negative = debit
	BalanceAfter     money.Amount
	Type             string
	Description      string
	ReferenceID      *string
	FundingSource    *string
	AttributedUserID *uuid.UUID
	CreatedAt        time.Time
}

// MemberUsage summarises debits attributed to one user within a tenant.
type MemberUsage struct {
	UserID           uuid.UUID
	TotalDebit       money.Amount
	TransactionCount int
}

// HistoryFilter narrows a history query.
type HistoryFilter struct {
	Limit  int
	Offset int
	Type   *string
}

// Clamp enforces spec.md's `limit ≤ 250, offset ≥ 0` bound, defaulting
// limit to 50 when unset.
func (f HistoryFilter) Clamp() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 250 {
		f.Limit = 250
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
