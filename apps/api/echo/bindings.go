package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/colegio/core"
)

const (
	orderingParam    = "ordering"
	contextObjectKey = "object"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type SuccessResponse struct {
	Success string `json:"success"`
}
