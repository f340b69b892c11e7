package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/expense-ledger/internal/domain"
)

type eventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) GetByID(ctx context.Context, eventID int64) (*domain.Event, error) {
	query := `
		SELECT id, name, owner_user_id, created_at
		FROM events
		WHERE id = $1
	`

	var event domain.Event
	err := r.db.GetContext(ctx, &event, query, eventID)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

func (r *eventRepository) ListParticipants(ctx context.Context, eventID int64) ([]*domain.Participant, error) {
	query := `
		SELECT id, event_id, name, user_id
		FROM participants
		WHERE event_id = $1
		ORDER BY id
	`

	var participants []*domain.Participant
	err := r.db.SelectContext(ctx, &participants, query, eventID)
	if err != nil {
		return nil, err
	}

	return participants, nil
}

type groupMember struct {
	GroupID       int64 `db:"group_id"`
	ParticipantID int64 `db:"participant_id"`
}

func (r *eventRepository) ListGroups(ctx context.Context, eventID int64) ([]*domain.Group, error) {
	groupQuery := `
		SELECT id, event_id, name
		FROM participant_groups
		WHERE event_id = $1
		ORDER BY id
	`

	var groups []*domain.Group
	if err := r.db.SelectContext(ctx, &groups, groupQuery, eventID); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return groups, nil
	}

	memberQuery := `
		SELECT m.group_id, m.participant_id
		FROM participant_group_members m
		JOIN participant_groups g ON g.id = m.group_id
		WHERE g.event_id = $1
		ORDER BY m.group_id, m.participant_id
	`

	var members []groupMember
	if err := r.db.SelectContext(ctx, &members, memberQuery, eventID); err != nil {
		return nil, err
	}

	byID := make(map[int64]*domain.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	for _, m := range members {
		if g, ok := byID[m.GroupID]; ok {
			g.MemberIDs = append(g.MemberIDs, m.ParticipantID)
		}
	}

	return groups, nil
}

func (r *eventRepository) ListEventIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT id FROM events ORDER BY id`

	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query)
	if err != nil {
		return nil, err
	}

	return ids, nil
}
