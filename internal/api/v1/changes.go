package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/server/middleware"
)

type EmitChangeInput struct {
	Body struct {
		Table     string         `json:"table" minLength:"1" maxLength:"128" doc:"Table that was mutated"`
		Operation string         `json:"operation" minLength:"1" doc:"INSERT, UPDATE or DELETE"`
		New       map[string]any `json:"new,omitempty" doc:"Row after the mutation"`
		Old       map[string]any `json:"old,omitempty" doc:"Row before the mutation"`
		BoardID   string         `json:"boardId,omitempty" doc:"Owning board when the row does not carry it"`
	}
}

type EmitChangeOutput struct {
	Body struct {
		Accepted bool `json:"accepted"`
	}
}

func RegisterChangeRoutes(api huma.API, emitter ChangeEmitter) {
	huma.Register(api, huma.Operation{
		OperationID:   "emit-change",
		Method:        http.MethodPost,
		Path:          "/changes",
		Summary:       "Report a completed mutation for realtime broadcast",
		Tags:          []string{"Changes"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *EmitChangeInput) (*EmitChangeOutput, error) {
		if !middleware.IsService(ctx) {
			return nil, huma.Error403Forbidden("service role required")
		}

		op, ok := domain.ParseOperation(input.Body.Operation)
		if !ok {
			return nil, huma.Error400BadRequest("unknown operation: " + input.Body.Operation)
		}

		switch {
		case op == domain.OperationInsert && input.Body.New == nil:
			return nil, huma.Error400BadRequest("INSERT requires new")
		case op == domain.OperationDelete && input.Body.Old == nil:
			return nil, huma.Error400BadRequest("DELETE requires old")
		case op == domain.OperationUpdate && input.Body.New == nil && input.Body.Old == nil:
			return nil, huma.Error400BadRequest("UPDATE requires new or old")
		}

		emitter.Emit(ctx, domain.ChangeNotice{
			Table:       input.Body.Table,
			Operation:   op,
			New:         input.Body.New,
			Old:         input.Body.Old,
			BoardIDHint: input.Body.BoardID,
		})

		out := &EmitChangeOutput{}
		out.Body.Accepted = true
		return out, nil
	})
}
