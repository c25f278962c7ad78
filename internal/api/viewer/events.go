package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-trees/internal/humastar"
	"github.com/joeblew999/plat-trees/internal/metrics"
	"github.com/joeblew999/plat-trees/internal/service"
)

// EventHandler streams dataset change events to the viewer via SSE.
type EventHandler struct {
	trees *service.TreeService
	bus   *service.EventBus
}

func NewEventHandler(trees *service.TreeService, bus *service.EventBus) *EventHandler {
	return &EventHandler{trees: trees, bus: bus}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/viewer/events", h.Events,
		huma.OperationTags("viewer"),
	)
}

func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			ch := h.bus.Subscribe()
			defer h.bus.Unsubscribe(ch)

			metrics.ActiveStreams.Inc()
			defer metrics.ActiveStreams.Dec()

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					if ev.Resource == "trees" {
						sse.Signals(map[string]any{"datasetTrees": len(h.trees.List())})
					}
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": ev.Resource,
						"action":   ev.Action,
						"id":       ev.ID,
					})
				}
			}
		},
	}, nil
}
