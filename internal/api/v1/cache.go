package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/fanout/internal/server/middleware"
)

type InvalidateBoardInput struct {
	BoardID string `path:"boardID" minLength:"1" doc:"Board ID"`
}

func RegisterCacheRoutes(api huma.API, invalidator CacheInvalidator) {
	huma.Register(api, huma.Operation{
		OperationID: "invalidate-board-workspace",
		Method:      http.MethodDelete,
		Path:        "/workspace-cache/boards/{boardID}",
		Summary:     "Drop cached workspace ownership for a board",
		Tags:        []string{"Cache"},
	}, func(ctx context.Context, input *InvalidateBoardInput) (*struct{}, error) {
		if !middleware.IsService(ctx) {
			return nil, huma.Error403Forbidden("service role required")
		}

		invalidator.Invalidate(input.BoardID)
		return nil, nil
	})
}
