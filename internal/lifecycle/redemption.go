package lifecycle

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wrenfield/starling/internal/ledger"
	"github.com/wrenfield/starling/internal/model"
	"github.com/wrenfield/starling/internal/store"
)

// ApprovalPolicy decides whether a redemption skips manual parent
// confirmation. The engine evaluates it exactly once, when the request is
// created, and treats it as an opaque predicate.
type ApprovalPolicy interface {
	AutoApprove(familyID int64, cost int) (bool, error)
}

// ThresholdPolicy auto-approves redemptions at or under a per-family cost
// threshold stored in family settings.
type ThresholdPolicy struct {
	settings *store.SettingsStore
}

func NewThresholdPolicy(settings *store.SettingsStore) *ThresholdPolicy {
	return &ThresholdPolicy{settings: settings}
}

func (p *ThresholdPolicy) AutoApprove(familyID int64, cost int) (bool, error) {
	enabled, err := p.settings.GetBool(familyID, store.SettingAutoApproveEnabled, false)
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}
	threshold, err := p.settings.GetInt(familyID, store.SettingAutoApproveThreshold, 0)
	if err != nil {
		return false, err
	}
	return cost <= threshold, nil
}

// RedemptionLifecycle drives a reward request from creation through
// approval or rejection. The guarded debit and the status write share one
// transaction: two racing redemptions cannot both pass the balance check.
type RedemptionLifecycle struct {
	db      *sql.DB
	rewards *store.RewardStore
	policy  ApprovalPolicy
	sink    Sink
	logger  *slog.Logger
}

func NewRedemptionLifecycle(db *sql.DB, rewards *store.RewardStore, policy ApprovalPolicy, sink Sink, logger *slog.Logger) *RedemptionLifecycle {
	return &RedemptionLifecycle{db: db, rewards: rewards, policy: policy, sink: sink, logger: logger}
}

// debitEntryID derives the ledger entry id for a request's debit.
func debitEntryID(requestID int64) string {
	return fmt.Sprintf("request:%d:debit", requestID)
}

// Request records a redemption request. When the auto-approval policy
// applies, the guarded debit happens immediately; an insufficient balance
// still records the request, frozen as rejected with reason
// insufficient_funds, and returns ErrInsufficientStars.
func (l *RedemptionLifecycle) Request(rewardID, childID int64) (*model.RewardRequest, error) {
	reward, err := l.rewards.GetByID(rewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil || !reward.Active {
		return nil, ErrRewardNotFound
	}

	auto, err := l.policy.AutoApprove(reward.FamilyID, reward.Cost)
	if err != nil {
		return nil, fmt.Errorf("evaluate auto-approval: %w", err)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	request, err := l.rewards.InsertRequest(tx, reward.ID, childID, reward.FamilyID, reward.Cost, reward.StarType, auto)
	if err != nil {
		return nil, err
	}

	if !auto {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit request: %w", err)
		}
		l.emit(Event{
			Kind:        EventRewardRequested,
			FamilyID:    request.FamilyID,
			ChildID:     childID,
			RewardID:    reward.ID,
			RequestID:   request.ID,
			RewardTitle: reward.Title,
			Stars:       reward.Cost,
			StarType:    reward.StarType,
		})
		return request, nil
	}

	return l.settle(tx, request, reward.Title, model.RequestAutoApproved, EventRewardAutoApproved)
}

// Approve resolves a pending request with the guarded debit. Approving an
// already-approved request is a no-op success.
func (l *RedemptionLifecycle) Approve(requestID int64) (*model.RewardRequest, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	request, err := l.rewards.GetRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}

	switch request.Status {
	case model.RequestApproved, model.RequestAutoApproved:
		return request, nil
	case model.RequestPending:
		// Proceed.
	default:
		return nil, ErrNotPending
	}

	title := l.rewardTitle(request.RewardID)
	return l.settle(tx, request, title, model.RequestApproved, EventRewardApproved)
}

// settle performs the guarded debit and freezes the request, all inside tx.
// On an insufficient balance the request is still committed, frozen as
// rejected with reason insufficient_funds.
func (l *RedemptionLifecycle) settle(tx *sql.Tx, request *model.RewardRequest, rewardTitle, okStatus, okEvent string) (*model.RewardRequest, error) {
	now := time.Now()
	balance, err := ledger.Apply(tx, request.ChildID, request.StarType, -request.Cost, debitEntryID(request.ID))
	if errors.Is(err, ledger.ErrInsufficientStars) {
		if rerr := l.rewards.ResolveRequest(tx, request.ID, model.RequestRejected, model.ReasonInsufficientFunds, now); rerr != nil {
			return nil, rerr
		}
		request, rerr := l.rewards.GetRequest(tx, request.ID)
		if rerr != nil {
			return nil, rerr
		}
		if cerr := tx.Commit(); cerr != nil {
			return nil, fmt.Errorf("commit rejection: %w", cerr)
		}
		l.emit(Event{
			Kind:        EventRewardRejected,
			FamilyID:    request.FamilyID,
			ChildID:     request.ChildID,
			RewardID:    request.RewardID,
			RequestID:   request.ID,
			RewardTitle: rewardTitle,
			Stars:       request.Cost,
			StarType:    request.StarType,
			Reason:      model.ReasonInsufficientFunds,
		})
		return request, err
	}
	if err != nil {
		return nil, err
	}

	if err := l.rewards.ResolveRequest(tx, request.ID, okStatus, "", now); err != nil {
		return nil, err
	}
	request, err = l.rewards.GetRequest(tx, request.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}

	l.emit(Event{
		Kind:         okEvent,
		FamilyID:     request.FamilyID,
		ChildID:      request.ChildID,
		RewardID:     request.RewardID,
		RequestID:    request.ID,
		RewardTitle:  rewardTitle,
		Stars:        request.Cost,
		StarType:     request.StarType,
		BalanceAfter: balance,
	})
	return request, nil
}

// Reject resolves a pending request with no ledger action. Stars are only
// debited at approval time, so there is never a held amount to refund.
func (l *RedemptionLifecycle) Reject(requestID int64) (*model.RewardRequest, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	request, err := l.rewards.GetRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}

	switch request.Status {
	case model.RequestRejected:
		return request, nil
	case model.RequestPending:
		// Proceed.
	default:
		return nil, ErrNotPending
	}

	if err := l.rewards.ResolveRequest(tx, requestID, model.RequestRejected, model.ReasonParentDeclined, time.Now()); err != nil {
		return nil, err
	}
	request, err = l.rewards.GetRequest(tx, requestID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rejection: %w", err)
	}

	l.emit(Event{
		Kind:        EventRewardRejected,
		FamilyID:    request.FamilyID,
		ChildID:     request.ChildID,
		RewardID:    request.RewardID,
		RequestID:   request.ID,
		RewardTitle: l.rewardTitle(request.RewardID),
		Stars:       request.Cost,
		StarType:    request.StarType,
		Reason:      model.ReasonParentDeclined,
	})
	return request, nil
}

func (l *RedemptionLifecycle) rewardTitle(rewardID int64) string {
	reward, err := l.rewards.GetByID(rewardID)
	if err != nil || reward == nil {
		return ""
	}
	return reward.Title
}

func (l *RedemptionLifecycle) emit(e Event) {
	if l.sink == nil {
		return
	}
	l.sink.Emit(e)
}
