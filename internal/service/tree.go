package service

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trees/internal/focus"
	"github.com/joeblew999/plat-trees/internal/metrics"
)

//go:embed demo_trees.geojson
var demoTrees []byte

// EmbeddedSource is reported by Source when the demo dataset is in use.
const EmbeddedSource = "embedded"

// TreeService owns the tree dataset and answers owner-scoped focus queries.
type TreeService struct {
	dataDir string
	bus     *EventBus
	logger  *zap.Logger

	mu     sync.RWMutex
	trees  []Tree
	byID   map[string]int
	owners map[string]string
	source string
}

// NewTreeService loads <dataDir>/trees.geojson, or the embedded demo dataset
// when that file does not exist. Owner names come from <dataDir>/owners.json
// merged over the demo accounts.
func NewTreeService(dataDir string, bus *EventBus, logger *zap.Logger) (*TreeService, error) {
	if bus == nil {
		bus = NewEventBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TreeService{dataDir: dataDir, bus: bus, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// DatasetFile returns the path of the GeoJSON dataset.
func (s *TreeService) DatasetFile() string {
	return filepath.Join(s.dataDir, "trees.geojson")
}

// ownersFile returns the path of the owner names file.
func (s *TreeService) ownersFile() string {
	return filepath.Join(s.dataDir, "owners.json")
}

// Reload re-reads the dataset and notifies subscribers.
func (s *TreeService) Reload() error {
	if err := s.load(); err != nil {
		return err
	}
	s.bus.Publish(Event{Resource: "trees", Action: "reloaded", ID: s.Source()})
	return nil
}

func (s *TreeService) load() error {
	data, source, err := s.readDataset()
	if err != nil {
		return err
	}
	trees, err := ParseTrees(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", source, err)
	}
	owners := s.loadOwners()

	byID := make(map[string]int, len(trees))
	for i := range trees {
		trees[i].Owner = ownerName(owners, trees[i].OwnerEmail)
		if trees[i].Location == nil {
			s.logger.Warn("tree has no usable location", zap.String("id", trees[i].ID))
		}
		if _, dup := byID[trees[i].ID]; dup {
			s.logger.Warn("duplicate tree id, keeping first", zap.String("id", trees[i].ID))
			continue
		}
		byID[trees[i].ID] = i
	}

	s.mu.Lock()
	s.trees, s.byID, s.owners, s.source = trees, byID, owners, source
	s.mu.Unlock()

	metrics.DatasetTrees.Set(float64(len(trees)))
	s.logger.Info("tree dataset loaded", zap.String("source", source), zap.Int("trees", len(trees)))
	return nil
}

func (s *TreeService) readDataset() ([]byte, string, error) {
	path := s.DatasetFile()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return demoTrees, EmbeddedSource, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading dataset: %w", err)
	}
	return data, path, nil
}

// loadOwners merges owners.json over the demo accounts. A missing or invalid
// file leaves the demo accounts in place.
func (s *TreeService) loadOwners() map[string]string {
	owners := make(map[string]string, len(defaultOwners))
	for k, v := range defaultOwners {
		owners[k] = v
	}

	data, err := os.ReadFile(s.ownersFile())
	if err != nil {
		return owners
	}
	var extra map[string]string
	if err := json.Unmarshal(data, &extra); err != nil {
		s.logger.Warn("ignoring invalid owners file", zap.String("path", s.ownersFile()), zap.Error(err))
		return owners
	}
	for email, name := range extra {
		owners[strings.ToLower(email)] = name
	}
	return owners
}

// Source returns the dataset path, or EmbeddedSource.
func (s *TreeService) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// List returns all trees in dataset order.
func (s *TreeService) List() []Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Tree(nil), s.trees...)
}

// Get returns a tree by ID.
func (s *TreeService) Get(id string) (Tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return Tree{}, false
	}
	return s.trees[i], true
}

// ByOwner returns the trees owned by email in dataset order. Emails compare
// case-insensitively.
func (s *TreeService) ByOwner(email string) []Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Tree
	for _, t := range s.trees {
		if strings.EqualFold(t.OwnerEmail, email) {
			out = append(out, t)
		}
	}
	return out
}

// Owner resolves the display name for email.
func (s *TreeService) Owner(email string) Owner {
	trees := s.ByOwner(email)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Owner{Email: email, Name: ownerName(s.owners, email), Trees: len(trees)}
}

// Owners lists every owner that has at least one tree, in order of first
// appearance.
func (s *TreeService) Owners() []Owner {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Owner
	index := map[string]int{}
	for _, t := range s.trees {
		key := strings.ToLower(t.OwnerEmail)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Owner{Email: t.OwnerEmail, Name: ownerName(s.owners, t.OwnerEmail)})
		}
		out[i].Trees++
	}
	return out
}

// Focus returns the densest cell of the owner's trees. An empty email means
// all trees.
func (s *TreeService) Focus(email string, gridSize float64) (focus.Cell, bool) {
	return Densest(Records(s.scope(email)), gridSize)
}

// Visible returns the owner's trees inside vp, nearest to center first.
func (s *TreeService) Visible(email string, vp focus.Viewport, center orb.Point) focus.Visible {
	return s.visible("visible", email, vp, center)
}

func (s *TreeService) visible(operation, email string, vp focus.Viewport, center orb.Point) focus.Visible {
	v := OrderVisible(operation, Records(s.scope(email)), vp, center)
	for _, skip := range v.Skipped {
		s.logger.Debug("tree skipped", zap.String("id", skip.ID), zap.Error(skip.Err))
	}
	return v
}

// Navigate steps from currentID by direction through the owner's visible
// trees. When currentID is not in view the nearest tree is returned.
func (s *TreeService) Navigate(email string, vp focus.Viewport, center orb.Point, currentID string, direction int) (Tree, int, focus.Visible, error) {
	v := s.visible("navigate", email, vp, center)
	if len(v.Records) == 0 {
		return Tree{}, -1, v, ErrNoVisibleTrees
	}

	next := 0
	if i := focus.IndexOf(v, currentID); i >= 0 {
		next = focus.Step(i, direction, len(v.Records))
	}
	return v.Records[next].Payload.(Tree), next, v, nil
}

func (s *TreeService) scope(email string) []Tree {
	if email == "" {
		return s.List()
	}
	return s.ByOwner(email)
}

// Densest finds the densest cell of records and counts the computation.
func Densest(records []focus.Record, gridSize float64) (focus.Cell, bool) {
	metrics.FocusComputations.WithLabelValues("dense").Inc()
	return focus.Densest(records, gridSize)
}

// OrderVisible orders the records inside vp by distance to center and counts
// the computation under operation.
func OrderVisible(operation string, records []focus.Record, vp focus.Viewport, center orb.Point) focus.Visible {
	v := focus.VisibleByProximity(records, vp, center)
	metrics.ObserveVisible(operation, len(v.Records), len(v.Skipped))
	return v
}

// Records converts trees to focus records carrying the Tree as payload.
func Records(trees []Tree) []focus.Record {
	out := make([]focus.Record, len(trees))
	for i, t := range trees {
		p := focus.NoPoint
		if t.Location != nil {
			p = *t.Location
		}
		out[i] = focus.Record{ID: t.ID, Point: p, Payload: t}
	}
	return out
}

// ParseTrees decodes a GeoJSON FeatureCollection of tree features. Features
// without a valid point keep a nil Location.
func ParseTrees(data []byte) ([]Tree, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	trees := make([]Tree, 0, len(fc.Features))
	for i, f := range fc.Features {
		trees = append(trees, treeFromFeature(i, f))
	}
	return trees, nil
}

func treeFromFeature(i int, f *geojson.Feature) Tree {
	props := f.Properties
	t := Tree{
		ID:          featureID(i, f),
		OwnerEmail:  propString(props, "ownerEmail"),
		Name:        propString(props, "name"),
		Species:     propString(props, "species"),
		PlantedYear: int(propFloat(props, "planetedYear", "plantedYear")),
		CO2Offset:   propFloat(props, "co2Offset"),
		Description: propString(props, "description"),
	}
	if imgs, ok := props["images"].([]interface{}); ok {
		for _, img := range imgs {
			if s, ok := img.(string); ok {
				t.Images = append(t.Images, s)
			}
		}
	}
	if p, ok := f.Geometry.(orb.Point); ok && validPoint(p) {
		t.Location = &p
	}
	return t
}

func featureID(i int, f *geojson.Feature) string {
	for _, v := range []interface{}{f.Properties["id"], f.ID} {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	return "tree-" + strconv.Itoa(i+1)
}

func propString(props geojson.Properties, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// propFloat returns the first numeric value among keys. Numeric strings are
// accepted since hand-edited datasets often quote years.
func propFloat(props geojson.Properties, keys ...string) float64 {
	for _, key := range keys {
		switch v := props[key].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func validPoint(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

func ownerName(owners map[string]string, email string) string {
	if name, ok := owners[strings.ToLower(email)]; ok {
		return name
	}
	return UnknownOwner
}
