package domain

// CategoryNode is one level of the product classification tree.
// ParentID is nil for root categories; the parent graph is a forest.
type CategoryNode struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	ParentID *int64 `db:"parent_id" json:"parent_id,omitempty"`
}
