package pagination

import "gorm.io/gorm"

type Pagination struct {
	Page  int `form:"page,default=1" validate:"gte=1"`
	Limit int `form:"limit,default=20" validate:"gte=1,lte=250"` // Min 1, Max 250
}

func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 250 {
		p.Limit = 250
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Scope applies page/limit to a gorm query.
func (p Pagination) Scope(tx *gorm.DB) *gorm.DB {
	n := p.Normalize()
	return tx.Offset(n.Offset()).Limit(n.Limit)
}

type PageInfo struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

func BuildPageInfo(p Pagination, total int64) *PageInfo {
	n := p.Normalize()
	return &PageInfo{
		Page:    n.Page,
		Limit:   n.Limit,
		Total:   total,
		HasMore: int64(n.Offset()+n.Limit) < total,
	}
}
