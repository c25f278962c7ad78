// Package viewer contains Datastar SSE handlers for the tree map page.
package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trees/internal/focus"
	"github.com/joeblew999/plat-trees/internal/humastar"
	"github.com/joeblew999/plat-trees/internal/service"
	"github.com/joeblew999/plat-trees/internal/templates"
)

// Handler serves the viewer's login and navigation actions.
type Handler struct {
	humastar.Handler
	trees    *service.TreeService
	gridSize float64
	logger   *zap.Logger
}

func NewHandler(trees *service.TreeService, renderer *templates.Renderer, gridSize float64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		trees:    trees,
		gridSize: gridSize,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/login", h.Login, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/navigate", h.Navigate, huma.OperationTags("viewer"))
}

// Login resolves the owner for the email signal and flies the camera to the
// dense area of their trees.
func (h *Handler) Login(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	email := signals.String("email")
	if email == "" {
		return nil, huma.Error400BadRequest("Email is required")
	}

	return h.Stream(func(sse humastar.SSE) {
		owner := h.trees.Owner(email)
		cell, ok := h.trees.Focus(email, h.gridSize)
		if !ok {
			sse.Error("No trees found for " + email)
			return
		}

		sse.Signals(map[string]any{
			"owner":    owner.Name,
			"trees":    owner.Trees,
			"camera":   focus.DenseCamera(cell.Centroid),
			"selected": "",
			"error":    "",
		})
		sse.Patch(h.renderTreeList(h.trees.ByOwner(email)), "#tree-list")
		h.logger.Debug("viewer login", zap.String("email", email), zap.Int("trees", owner.Trees))
	}), nil
}

// Navigate moves the selection through the owner's visible trees. A
// direction of 0 selects the current tree when it is in view.
func (h *Handler) Navigate(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	vp, err := viewport(signals)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	center := vp.Center()
	lon, okLon := signals.Number("centerlng")
	lat, okLat := signals.Number("centerlat")
	if okLon && okLat {
		center = orb.Point{lon, lat}
	}

	email := signals.String("email")
	current := signals.String("current")
	direction := signals.Int("direction")

	return h.Stream(func(sse humastar.SSE) {
		tree, index, v, err := h.trees.Navigate(email, vp, center, current, direction)
		if errors.Is(err, service.ErrNoVisibleTrees) {
			sse.Signals(map[string]any{"selected": "", "index": -1, "total": 0})
			sse.Patch(h.renderEmpty("No trees in view", "Zoom out or pan the map to find trees."), "#tree-panel")
			return
		}
		if err != nil {
			sse.Error(err.Error())
			return
		}

		sse.Signals(map[string]any{
			"selected": tree.ID,
			"index":    index,
			"total":    len(v.Records),
			"camera":   focus.MarkerCamera(*tree.Location),
			"error":    "",
		})
		sse.Patch(h.renderPanel(tree, index, len(v.Records), v.Records[index].Meters), "#tree-panel")
	}), nil
}

func (h *Handler) renderEmpty(title, msg string) string {
	html, _ := h.Renderer.Render("empty-state", map[string]string{"Title": title, "Message": msg})
	return html
}

type panelData struct {
	Tree     service.Tree
	Position int
	Total    int
	Distance string
}

func (h *Handler) renderPanel(tree service.Tree, index, total int, meters float64) string {
	html, err := h.Renderer.Render("tree-panel", panelData{
		Tree:     tree,
		Position: index + 1,
		Total:    total,
		Distance: formatDistance(meters),
	})
	if err != nil {
		h.logger.Error("rendering tree panel", zap.String("id", tree.ID), zap.Error(err))
	}
	return html
}

func (h *Handler) renderTreeList(trees []service.Tree) string {
	items := make([]any, len(trees))
	for i, t := range trees {
		items[i] = t
	}
	return h.RenderList("tree-item", items, "No trees yet", "Trees you plant will show up here.")
}

// viewport reads the swlng/swlat/nelng/nelat signals.
func viewport(signals humastar.Signals) (focus.Viewport, error) {
	var coords [4]float64
	for i, key := range []string{"swlng", "swlat", "nelng", "nelat"} {
		f, ok := signals.Number(key)
		if !ok {
			return focus.Viewport{}, fmt.Errorf("signal %q is required", key)
		}
		coords[i] = f
	}
	return focus.Viewport{
		SW: orb.Point{coords[0], coords[1]},
		NE: orb.Point{coords[2], coords[3]},
	}, nil
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
