package model

import (
	"github.com/guregu/null/v6"
)

const defaultLimit = 10

// PaginationParams selects a page of a listing. Page numbers start at 1.
type PaginationParams struct {
	Page  null.Int32 `query:"page" validate:"omitnil,gt=0"`
	Limit int32      `query:"limit" validate:"omitempty,gt=0,lte=100"`
}

func (p *PaginationParams) Offset() int32 {
	return (p.GetPage() - 1) * p.GetLimit()
}

func (p *PaginationParams) GetPage() int32 {
	if !p.Page.Valid || p.Page.Int32 <= 0 {
		p.Page.SetValid(1)
	}
	return p.Page.Int32
}

func (p *PaginationParams) GetLimit() int32 {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	return p.Limit
}

// PaginateResult is one page of a listing.
type PaginateResult[T any] struct {
	PageParams PaginationParams
	Data       []T
	Total      null.Int64
}

// NextPage is null on the last page.
func (p PaginateResult[T]) NextPage() null.Int32 {
	if p.Total.Valid {
		page := p.PageParams.GetPage()
		if int64(page*p.PageParams.GetLimit()) < p.Total.Int64 {
			return null.Int32From(page + 1)
		}
	}
	return null.Int32{}
}
