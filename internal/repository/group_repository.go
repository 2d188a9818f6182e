package repository

import (
	"context"

	"github.com/stemsi/exstem-quiz/internal/database"
)

// GroupRepository resolves group membership for group overrides.
type GroupRepository struct {
	db database.Querier
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db database.Querier) *GroupRepository {
	return &GroupRepository{db: db}
}

// ListUserGroups returns the IDs of every group the user belongs to.
func (r *GroupRepository) ListUserGroups(ctx context.Context, userID int) ([]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY group_id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
