package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wrenfield/starling/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

// DB exposes the underlying handle for lifecycle transactions.
func (s *RewardStore) DB() *sql.DB {
	return s.db
}

const rewardCols = `id, family_id, title, description, cost, star_type, active, created_at`

func scanReward(s scanner) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := s.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Description, &r.Cost, &r.StarType, &active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

func (s *RewardStore) Create(familyID int64, title, description string, cost int, starType string, active bool) (*model.Reward, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("cost must be positive")
	}
	var a int
	if active {
		a = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO rewards (family_id, title, description, cost, star_type, active) VALUES (?, ?, ?, ?, ?, ?)`,
		familyID, title, description, cost, starType, a,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns a family's rewards, active first, then by title.
func (s *RewardStore) List(familyID int64) ([]model.Reward, error) {
	rows, err := s.db.Query(
		`SELECT `+rewardCols+` FROM rewards WHERE family_id = ? ORDER BY active DESC, title ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, title, description string, cost int, starType string, active bool) (*model.Reward, error) {
	if cost <= 0 {
		return nil, fmt.Errorf("cost must be positive")
	}
	var a int
	if active {
		a = 1
	}

	_, err := s.db.Exec(
		`UPDATE rewards SET title = ?, description = ?, cost = ?, star_type = ?, active = ? WHERE id = ?`,
		title, description, cost, starType, a, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// --- Request methods ---

const requestCols = `id, reward_id, child_id, family_id, cost, star_type, status, auto_approved, reason, requested_at, resolved_at`

func scanRequest(s scanner) (*model.RewardRequest, error) {
	var r model.RewardRequest
	var auto int
	var resolvedAt sql.NullTime

	err := s.Scan(
		&r.ID, &r.RewardID, &r.ChildID, &r.FamilyID, &r.Cost, &r.StarType,
		&r.Status, &auto, &r.Reason, &r.RequestedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	r.AutoApproved = auto != 0
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return &r, nil
}

// InsertRequest records a new redemption request inside a caller
// transaction. It starts pending; the lifecycle resolves it in the same
// transaction when the auto-approval path applies.
func (s *RewardStore) InsertRequest(q querier, rewardID, childID, familyID int64, cost int, starType string, autoApproved bool) (*model.RewardRequest, error) {
	if q == nil {
		q = s.db
	}
	var auto int
	if autoApproved {
		auto = 1
	}
	result, err := q.Exec(
		`INSERT INTO reward_requests (reward_id, child_id, family_id, cost, star_type, status, auto_approved)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rewardID, childID, familyID, cost, starType, model.RequestPending, auto,
	)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetRequest(q, id)
}

func (s *RewardStore) GetRequest(q querier, id int64) (*model.RewardRequest, error) {
	if q == nil {
		q = s.db
	}
	row := q.QueryRow(`SELECT `+requestCols+` FROM reward_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return r, nil
}

// ResolveRequest moves a request out of pending. Once resolved the row is
// frozen; callers must have checked the current status first.
func (s *RewardStore) ResolveRequest(q querier, id int64, status, reason string, at time.Time) error {
	if q == nil {
		q = s.db
	}
	_, err := q.Exec(
		`UPDATE reward_requests SET status = ?, reason = ?, resolved_at = ? WHERE id = ?`,
		status, reason, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve request: %w", err)
	}
	return nil
}

// ListRequests returns a family's requests, optionally filtered by status,
// newest first.
func (s *RewardStore) ListRequests(familyID int64, status string) ([]model.RewardRequest, error) {
	query := `SELECT ` + requestCols + ` FROM reward_requests WHERE family_id = ?`
	args := []any{familyID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY requested_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []model.RewardRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}
