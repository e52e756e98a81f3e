package model

// TodoRecord is a single todo item inside one tenant's store. Timestamps are
// millisecond epoch integers.
type TodoRecord struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
	Updated     int64  `json:"updated"`
	Completed   bool   `json:"completed"`
}

// TodoPatch carries a partial update. Nil fields are left unchanged.
type TodoPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// Empty reports whether the patch changes nothing.
func (p TodoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}
