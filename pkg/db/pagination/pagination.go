package pagination

type Pagination struct {
	Page     int `form:"page,default=1" validate:"gte=1"`
	PageSize int `form:"page_size,default=25" validate:"gte=1,lte=250"`
}

func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return 25
	}
	if p.PageSize > 250 {
		return 250
	}
	return p.PageSize
}

func (p Pagination) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.Limit()
}

type PageInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	HasMore    bool  `json:"has_more"`
}

func BuildPageInfo(p Pagination, total int64) PageInfo {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return PageInfo{
		Page:       page,
		PageSize:   p.Limit(),
		TotalCount: total,
		HasMore:    int64(p.Offset()+p.Limit()) < total,
	}
}
