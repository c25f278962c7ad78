// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trees/internal/db"
	"github.com/joeblew999/plat-trees/internal/focus"
	"github.com/joeblew999/plat-trees/internal/humastar"
	"github.com/joeblew999/plat-trees/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Tree     *service.TreeService
	DB       *sql.DB
	GridSize float64
	Logger   *zap.Logger
}

// RegisterRoutes registers every REST operation on api.
func RegisterRoutes(api huma.API, svc *Services, dataDir string) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(dataDir, svc.DB != nil).RegisterRoutes(api)
	NewDBHandler(svc.DB).RegisterRoutes(api)
}

// Types

type TreeIDInput struct {
	ID string `path:"id" doc:"Tree ID" example:"1"`
}

type TreeListInput struct {
	Owner string `query:"owner" doc:"Only trees owned by this email" example:"demo@example.com"`
	humastar.PageInput
}

type OwnerFocusInput struct {
	Email    string  `path:"email" doc:"Owner email" example:"user1@example.com"`
	GridSize float64 `query:"gridSize" doc:"Grid cell size in degrees (0 uses the server default)" minimum:"0"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
	Trees   int    `json:"trees" doc:"Trees in the loaded dataset"`
}

// CellBody describes the densest grid cell.
type CellBody struct {
	Key    [2]int64  `json:"key" doc:"Cell index [floor(lon/size), floor(lat/size)]"`
	Size   float64   `json:"size" doc:"Cell size in degrees"`
	Count  int       `json:"count" doc:"Points in the cell"`
	Origin orb.Point `json:"origin" doc:"South-west corner of the cell [lon, lat]"`
}

type FocusBody struct {
	Found  bool          `json:"found" doc:"False when there were no usable points"`
	Focus  orb.Point     `json:"focus" doc:"Centroid of the densest cell [lon, lat]; [0, 0] when nothing was found"`
	Cell   *CellBody     `json:"cell,omitempty" doc:"The densest cell"`
	Camera *focus.Camera `json:"camera,omitempty" doc:"Fly-to parameters for the dense area"`
}

type OwnerFocusBody struct {
	Owner service.Owner `json:"owner" doc:"Owner the focus was computed for"`
	FocusBody
}

type FocusRequest struct {
	Points   []orb.Point `json:"points" doc:"Points [lon, lat]"`
	GridSize float64     `json:"gridSize,omitempty" doc:"Grid cell size in degrees (0 uses the server default)" minimum:"0"`
}

// PointInput is a caller-supplied record.
type PointInput struct {
	ID    string    `json:"id" doc:"Record ID" example:"a"`
	Point orb.Point `json:"point" doc:"Position [lon, lat]"`
}

type VisibleRequest struct {
	Owner  string         `json:"owner,omitempty" doc:"Rank this owner's trees (empty: all trees)"`
	Points []PointInput   `json:"points,omitempty" doc:"Rank these records instead of the dataset"`
	Bounds focus.Viewport `json:"bounds" doc:"Visible map extent"`
	Center *orb.Point     `json:"center,omitempty" doc:"Reference point [lon, lat]; defaults to the viewport center"`
}

// RankedBody is one visible record.
type RankedBody struct {
	ID     string        `json:"id" doc:"Record ID"`
	Point  orb.Point     `json:"point" doc:"Position [lon, lat]"`
	Meters float64       `json:"meters" doc:"Great-circle distance to the reference point"`
	Tree   *service.Tree `json:"tree,omitempty" doc:"Tree details for dataset records"`
}

// SkipBody is one record left out of the ordering.
type SkipBody struct {
	ID     string `json:"id" doc:"Record ID"`
	Reason string `json:"reason" doc:"Why the record was skipped"`
}

type VisibleBody struct {
	Center  orb.Point    `json:"center" doc:"Reference point used for ranking"`
	Records []RankedBody `json:"records" doc:"Visible records, nearest first"`
	Skipped []SkipBody   `json:"skipped" doc:"Records with malformed coordinates"`
}

type NavigateRequest struct {
	Owner     string         `json:"owner,omitempty" doc:"Navigate this owner's trees (empty: all trees)"`
	Current   string         `json:"current,omitempty" doc:"ID of the selected tree"`
	Direction int            `json:"direction" enum:"-1,1" doc:"1 for next, -1 for previous"`
	Bounds    focus.Viewport `json:"bounds" doc:"Visible map extent"`
	Center    *orb.Point     `json:"center,omitempty" doc:"Reference point [lon, lat]; defaults to the viewport center"`
}

type NavigateBody struct {
	Tree   service.Tree `json:"tree" doc:"Selected tree"`
	Index  int          `json:"index" doc:"Position of the tree in the visible ordering"`
	Total  int          `json:"total" doc:"Number of visible trees"`
	Meters float64      `json:"meters" doc:"Distance from the reference point"`
	Camera focus.Camera `json:"camera" doc:"Fly-to parameters for the tree"`
}

type ReloadBody struct {
	Source   string `json:"source" doc:"Dataset path, or \"embedded\""`
	Trees    int    `json:"trees" doc:"Trees loaded"`
	Mirrored int    `json:"mirrored" doc:"Rows written to the DuckDB mirror (-1 when unavailable)"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Logger == nil {
		svc.Logger = zap.NewNop()
	}
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterTrees registers dataset routes.
func (h *APIHandler) RegisterTrees(api huma.API) {
	huma.Get(api, "/api/v1/trees", h.ListTrees, huma.OperationTags("trees"))
	huma.Get(api, "/api/v1/trees/{id}", h.GetTree, huma.OperationTags("trees"))
	huma.Post(api, "/api/v1/trees/reload", h.ReloadTrees, huma.OperationTags("trees"))
	huma.Get(api, "/api/v1/owners", h.ListOwners, huma.OperationTags("trees"))
}

// RegisterFocus registers the focus engine routes.
func (h *APIHandler) RegisterFocus(api huma.API) {
	huma.Get(api, "/api/v1/owners/{email}/focus", h.GetOwnerFocus, huma.OperationTags("focus"))
	huma.Post(api, "/api/v1/focus", h.PostFocus, huma.OperationTags("focus"))
	huma.Post(api, "/api/v1/visible", h.PostVisible, huma.OperationTags("focus"))
	huma.Post(api, "/api/v1/navigate", h.PostNavigate, huma.OperationTags("focus"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{
		Status: "ok", Version: "1.0.0", Trees: len(h.svc.Tree.List()),
	}}, nil
}

func (h *APIHandler) ListTrees(ctx context.Context, input *TreeListInput) (*struct {
	Body humastar.PageBody[service.Tree]
}, error) {
	trees := h.svc.Tree.List()
	if input.Owner != "" {
		trees = h.svc.Tree.ByOwner(input.Owner)
	}
	return &struct {
		Body humastar.PageBody[service.Tree]
	}{Body: humastar.Page(trees, input.PageInput)}, nil
}

func (h *APIHandler) GetTree(ctx context.Context, input *TreeIDInput) (*struct{ Body service.Tree }, error) {
	tree, ok := h.svc.Tree.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(service.ErrTreeNotFound.Error())
	}
	return &struct{ Body service.Tree }{Body: tree}, nil
}

func (h *APIHandler) ListOwners(ctx context.Context, input *struct{}) (*struct{ Body []service.Owner }, error) {
	owners := h.svc.Tree.Owners()
	if owners == nil {
		owners = []service.Owner{}
	}
	return &struct{ Body []service.Owner }{Body: owners}, nil
}

func (h *APIHandler) ReloadTrees(ctx context.Context, input *struct{}) (*struct{ Body ReloadBody }, error) {
	if err := h.svc.Tree.Reload(); err != nil {
		return nil, huma.Error500InternalServerError("reload failed", err)
	}
	body := ReloadBody{Source: h.svc.Tree.Source(), Trees: len(h.svc.Tree.List()), Mirrored: -1}
	if h.svc.DB != nil {
		n, err := db.SyncTrees(ctx, h.svc.DB, h.svc.Tree.List())
		if err != nil {
			return nil, huma.Error500InternalServerError("mirror sync failed", err)
		}
		body.Mirrored = n
	}
	h.svc.Logger.Info("trees reloaded", zap.String("source", body.Source), zap.Int("trees", body.Trees))
	return &struct{ Body ReloadBody }{Body: body}, nil
}

func (h *APIHandler) GetOwnerFocus(ctx context.Context, input *OwnerFocusInput) (*struct{ Body OwnerFocusBody }, error) {
	cell, ok := h.svc.Tree.Focus(input.Email, h.gridSize(input.GridSize))
	if !ok {
		return nil, huma.Error404NotFound("no located trees for " + input.Email)
	}
	return &struct{ Body OwnerFocusBody }{Body: OwnerFocusBody{
		Owner:     h.svc.Tree.Owner(input.Email),
		FocusBody: focusBody(cell, true),
	}}, nil
}

func (h *APIHandler) PostFocus(ctx context.Context, input *struct{ Body FocusRequest }) (*struct{ Body FocusBody }, error) {
	records := make([]focus.Record, len(input.Body.Points))
	for i, p := range input.Body.Points {
		records[i] = focus.Record{Point: p}
	}
	cell, ok := service.Densest(records, h.gridSize(input.Body.GridSize))
	return &struct{ Body FocusBody }{Body: focusBody(cell, ok)}, nil
}

func (h *APIHandler) PostVisible(ctx context.Context, input *struct{ Body VisibleRequest }) (*struct{ Body VisibleBody }, error) {
	req := input.Body
	center := req.Bounds.Center()
	if req.Center != nil {
		center = *req.Center
	}

	var v focus.Visible
	if len(req.Points) > 0 {
		records := make([]focus.Record, len(req.Points))
		for i, p := range req.Points {
			records[i] = focus.Record{ID: p.ID, Point: p.Point}
		}
		v = service.OrderVisible("visible", records, req.Bounds, center)
	} else {
		v = h.svc.Tree.Visible(req.Owner, req.Bounds, center)
	}

	body := VisibleBody{
		Center:  center,
		Records: make([]RankedBody, len(v.Records)),
		Skipped: make([]SkipBody, len(v.Skipped)),
	}
	for i, r := range v.Records {
		body.Records[i] = RankedBody{ID: r.ID, Point: r.Point, Meters: r.Meters}
		if t, ok := r.Payload.(service.Tree); ok {
			body.Records[i].Tree = &t
		}
	}
	for i, s := range v.Skipped {
		body.Skipped[i] = SkipBody{ID: s.ID, Reason: s.Err.Error()}
	}
	return &struct{ Body VisibleBody }{Body: body}, nil
}

func (h *APIHandler) PostNavigate(ctx context.Context, input *struct{ Body NavigateRequest }) (*struct{ Body NavigateBody }, error) {
	req := input.Body
	center := req.Bounds.Center()
	if req.Center != nil {
		center = *req.Center
	}

	tree, index, v, err := h.svc.Tree.Navigate(req.Owner, req.Bounds, center, req.Current, req.Direction)
	if errors.Is(err, service.ErrNoVisibleTrees) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("navigation failed", err)
	}
	return &struct{ Body NavigateBody }{Body: NavigateBody{
		Tree:   tree,
		Index:  index,
		Total:  len(v.Records),
		Meters: v.Records[index].Meters,
		Camera: focus.MarkerCamera(*tree.Location),
	}}, nil
}

func (h *APIHandler) gridSize(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	if h.svc.GridSize > 0 {
		return h.svc.GridSize
	}
	return focus.DefaultGridSize
}

func focusBody(cell focus.Cell, ok bool) FocusBody {
	if !ok {
		return FocusBody{Focus: orb.Point{0, 0}}
	}
	camera := focus.DenseCamera(cell.Centroid)
	return FocusBody{
		Found:  true,
		Focus:  cell.Centroid,
		Cell:   &CellBody{Key: cell.Key, Size: cell.Size, Count: cell.Count, Origin: cell.Origin()},
		Camera: &camera,
	}
}
