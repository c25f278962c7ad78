package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-trees/internal/focus"
	"github.com/joeblew999/plat-trees/internal/service"
)

type focusResult struct {
	Trees  int           `json:"trees"`
	Found  bool          `json:"found"`
	Focus  orb.Point     `json:"focus"`
	Count  int           `json:"count,omitempty"`
	Camera *focus.Camera `json:"camera,omitempty"`
}

type visibleResult struct {
	Visible []visibleTree `json:"visible"`
	Skipped []skippedTree `json:"skipped"`
}

type visibleTree struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Point  orb.Point `json:"point"`
	Meters float64   `json:"meters"`
}

type skippedTree struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func loadTrees(data []byte, owner string) ([]service.Tree, error) {
	trees, err := service.ParseTrees(data)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return trees, nil
	}
	var out []service.Tree
	for _, t := range trees {
		if strings.EqualFold(t.OwnerEmail, owner) {
			out = append(out, t)
		}
	}
	return out, nil
}

func runFocus(w io.Writer, data []byte, owner string, gridSize float64) error {
	trees, err := loadTrees(data, owner)
	if err != nil {
		return err
	}

	res := focusResult{Trees: len(trees), Focus: orb.Point{0, 0}}
	if cell, ok := focus.Densest(service.Records(trees), gridSize); ok {
		camera := focus.DenseCamera(cell.Centroid)
		res.Found, res.Focus, res.Count, res.Camera = true, cell.Centroid, cell.Count, &camera
	}
	return writeJSON(w, res)
}

func runVisible(w io.Writer, data []byte, owner, bounds, center string) error {
	vp, err := parseBounds(bounds)
	if err != nil {
		return err
	}
	ref := vp.Center()
	if center != "" {
		if ref, err = parsePoint(center); err != nil {
			return err
		}
	}

	trees, err := loadTrees(data, owner)
	if err != nil {
		return err
	}

	v := focus.VisibleByProximity(service.Records(trees), vp, ref)
	out := visibleResult{
		Visible: make([]visibleTree, len(v.Records)),
		Skipped: make([]skippedTree, len(v.Skipped)),
	}
	for i, r := range v.Records {
		out.Visible[i] = visibleTree{ID: r.ID, Name: r.Payload.(service.Tree).Name, Point: r.Point, Meters: r.Meters}
	}
	for i, s := range v.Skipped {
		out.Skipped[i] = skippedTree{ID: s.ID, Reason: s.Err.Error()}
	}
	return writeJSON(w, out)
}

// parseBounds reads "west,south,east,north".
func parseBounds(s string) (focus.Viewport, error) {
	f, err := parseFloats(s, 4)
	if err != nil {
		return focus.Viewport{}, fmt.Errorf("invalid bounds %q: %w", s, err)
	}
	return focus.Viewport{SW: orb.Point{f[0], f[1]}, NE: orb.Point{f[2], f[3]}}, nil
}

// parsePoint reads "lon,lat".
func parsePoint(s string) (orb.Point, error) {
	f, err := parseFloats(s, 2)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return orb.Point{f[0], f[1]}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated numbers, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
