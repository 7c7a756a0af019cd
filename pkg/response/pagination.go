package response

import (
	"net/http"

	"github.com/guregu/null/v6"

	"github.com/beanbocchi/stowage/internal/model"
)

type PaginationResponse[T any] struct {
	Data     []T      `json:"data"`
	PageMeta PageMeta `json:"pagination"`
}

type PageMeta struct {
	Limit    int32      `json:"limit"`
	Total    null.Int64 `json:"total"`
	Page     null.Int32 `json:"page"`
	NextPage null.Int32 `json:"next_page"`
}

func FromPaginate[T any](w http.ResponseWriter, status int, result model.PaginateResult[T]) error {
	params := result.PageParams
	return write(w, status, PaginationResponse[T]{
		Data: result.Data,
		PageMeta: PageMeta{
			Limit:    params.GetLimit(),
			Total:    result.Total,
			Page:     null.Int32From(params.GetPage()),
			NextPage: result.NextPage(),
		},
	})
}
