package models

type PaginatedResponse[T any] struct {
	Meta  Meta `json:"meta"`
	Items []T  `json:"items"`
}

type Meta struct {
	TotalItems     int `json:"total_items"`
	TotalPages     int `json:"total_pages"`
	CurrentPage    int `json:"current_page"`
	PerPage        int `json:"per_page"`
	RemainingCount int `json:"remaining_count"`
}

// NewMeta fills the pagination block the same way for every listing.
func NewMeta(total int64, page, limit int) Meta {
	totalPages := (int(total) + limit - 1) / limit
	remaining := int(total) - page*limit
	if remaining < 0 {
		remaining = 0
	}
	return Meta{
		TotalItems:     int(total),
		TotalPages:     totalPages,
		CurrentPage:    page,
		PerPage:        limit,
		RemainingCount: remaining,
	}
}
