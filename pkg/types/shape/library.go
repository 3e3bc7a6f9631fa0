package shape

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Shape libraries
// ─────────────────────────────────────────────────────────────────────────────

// LibraryDTO describes a stored shape library.
type LibraryDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ShapeCount  int       `json:"shape_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateLibraryRequest creates an empty library.
type CreateLibraryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListLibrariesResponse is one page of libraries.
type ListLibrariesResponse struct {
	Libraries []LibraryDTO `json:"libraries"`
	Total     int64        `json:"total"`
	Page      int          `json:"page"`
	PageSize  int          `json:"page_size"`
}

// AddShapesRequest appends shapes to a library.
type AddShapesRequest struct {
	Shapes []ShapeDTO `json:"shapes"`
}

// AddShapesResponse reports the positions assigned to the new shapes:
// FirstPosition through FirstPosition+Added-1.
type AddShapesResponse struct {
	Library       string `json:"library"`
	Added         int    `json:"added"`
	FirstPosition int    `json:"first_position"`
	ShapeCount    int    `json:"shape_count"`
}

// LibraryEntryDTO is one stored shape with its position.
type LibraryEntryDTO struct {
	ID       string   `json:"id"`
	Position int      `json:"position"`
	Shape    ShapeDTO `json:"shape"`
}

// ListShapesResponse is one page of library entries.
type ListShapesResponse struct {
	Library  string            `json:"library"`
	Entries  []LibraryEntryDTO `json:"entries"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// LibraryScreenRequest screens a reference against every shape in a stored
// library.  Hit and failure indexes are library positions.
type LibraryScreenRequest struct {
	Reference ShapeDTO `json:"reference"`
	TopN      *int     `json:"top_n,omitempty"`
	MinScore  *float64 `json:"min_score,omitempty"`
}

// DeleteLibraryResponse confirms a library removal.
type DeleteLibraryResponse struct {
	Library string `json:"library"`
	Deleted bool   `json:"deleted"`
}
