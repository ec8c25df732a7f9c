package dto

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

type PaginationParams struct {
	Page    int
	PerPage int
}

func (p *PaginationParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
}

func (p *PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// BulkUploadResponse reports itemized outcomes for CSV imports.
// Partial success is normal and returned with 207 Multi-Status.
type BulkUploadResponse struct {
	Added          int             `json:"added"`
	Skipped        int             `json:"skipped"`
	Errors         []BulkRowError  `json:"errors"`
	SkippedDetails []BulkRowDetail `json:"skippedDetails"`
}

type BulkRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type BulkRowDetail struct {
	Row    int    `json:"row"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}
