package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/heimdalr/dag"
)

type memRelation struct {
	id      RelID
	name    string
	columns []Column
	config  *Config
	visible bool

	// set while attached to a parent
	bounds ChildPartition
}

// Memory is a thread-safe in-memory catalog.
// Inheritance is kept in a DAG so attaching a partition can never create a cycle.
type Memory struct {
	types *Types

	mu        sync.RWMutex
	installed bool
	relations map[RelID]*memRelation
	graph     *dag.DAG
}

// NewMemory creates an empty catalog using types for value metadata
func NewMemory(types *Types) *Memory {
	if types == nil {
		types = NewTypes()
	}

	return &Memory{
		types:     types,
		installed: true,
		relations: make(map[RelID]*memRelation),
		graph:     dag.NewDAG(),
	}
}

// Types returns the type registry backing this catalog
func (m *Memory) Types() *Types {
	return m.types
}

func vertexID(relid RelID) string {
	return strconv.FormatUint(uint64(relid), 10)
}

func parseVertexID(id string) RelID {
	v, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return InvalidRelID
	}

	return RelID(v)
}

// AddRelation registers a visible relation
func (m *Memory) AddRelation(relid RelID, name string, columns ...Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.relations[relid]; exists {
		return fmt.Errorf("%w: %d", ErrRelationExists, relid)
	}

	if err := m.graph.AddVertexByID(vertexID(relid), vertexID(relid)); err != nil {
		return fmt.Errorf("failed to add relation %d: %w", relid, err)
	}

	m.relations[relid] = &memRelation{
		id:      relid,
		name:    name,
		columns: append([]Column(nil), columns...),
		visible: true,
	}

	return nil
}

// DropRelation removes a relation together with its inheritance edges
func (m *Memory) DropRelation(relid RelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.relations[relid]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelation, relid)
	}

	if err := m.graph.DeleteVertex(vertexID(relid)); err != nil {
		return fmt.Errorf("failed to drop relation %d: %w", relid, err)
	}

	delete(m.relations, relid)

	return nil
}

// SetPartitioning stores the partitioning configuration of a table
func (m *Memory) SetPartitioning(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, ok := m.relations[cfg.RelID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelation, cfg.RelID)
	}

	stored := cfg
	rel.config = &stored

	return nil
}

// ClearPartitioning removes the partitioning configuration of a table
func (m *Memory) ClearPartitioning(relid RelID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rel, ok := m.relations[relid]; ok {
		rel.config = nil
	}
}

// AttachRangePartition makes child a RANGE partition of parent covering [min, max)
func (m *Memory) AttachRangePartition(parent, child RelID, minBound, maxBound bound.Bound) error {
	return m.attach(parent, ChildPartition{RelID: child, Min: minBound, Max: maxBound})
}

// AttachHashPartition makes child the HASH partition of parent at slot
func (m *Memory) AttachHashPartition(parent, child RelID, slot uint32) error {
	return m.attach(parent, ChildPartition{
		RelID:    child,
		Min:      bound.MakeInfiniteBound(bound.MinusInfinity),
		Max:      bound.MakeInfiniteBound(bound.PlusInfinity),
		HashSlot: slot,
	})
}

func (m *Memory) attach(parent RelID, part ChildPartition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.relations[parent]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelation, parent)
	}

	rel, ok := m.relations[part.RelID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelation, part.RelID)
	}

	parents, err := m.graph.GetParents(vertexID(part.RelID))
	if err != nil {
		return fmt.Errorf("failed to read parents of %d: %w", part.RelID, err)
	}

	if len(parents) > 0 {
		return fmt.Errorf("%w: %d", ErrAlreadyPartition, part.RelID)
	}

	// AddEdge returns an error if the edge would create a cycle
	if err := m.graph.AddEdge(vertexID(parent), vertexID(part.RelID)); err != nil {
		return fmt.Errorf("invalid partition %d of %d: %w", part.RelID, parent, err)
	}

	rel.bounds = part

	return nil
}

// Detach removes child from its parent
func (m *Memory) Detach(child RelID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, ok := m.relations[child]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelation, child)
	}

	parent, err := m.parentLocked(child)
	if err != nil {
		return err
	}

	if parent == InvalidRelID {
		return fmt.Errorf("%w: %d", ErrNotAPartition, child)
	}

	if err := m.graph.DeleteEdge(vertexID(parent), vertexID(child)); err != nil {
		return fmt.Errorf("failed to detach %d from %d: %w", child, parent, err)
	}

	rel.bounds = ChildPartition{}

	return nil
}

// SetVisible toggles whether a relation can be seen under the current snapshot
func (m *Memory) SetVisible(relid RelID, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rel, ok := m.relations[relid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelation, relid)
	}

	rel.visible = visible

	return nil
}

// SetInstalled toggles the presence of the partitioning configuration catalog
func (m *Memory) SetInstalled(installed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.installed = installed
}

// RelationByName looks a relation up by name
func (m *Memory) RelationByName(name string) (RelID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, rel := range m.relations {
		if strings.EqualFold(rel.name, name) {
			return id, true
		}
	}

	return InvalidRelID, false
}

// RelationName returns the name of a relation or its identifier when unknown
func (m *Memory) RelationName(relid RelID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rel, ok := m.relations[relid]; ok {
		return rel.name
	}

	return vertexID(relid)
}

// PartitionedRelations returns every relation with a partitioning configuration
func (m *Memory) PartitionedRelations() []RelID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RelID, 0)
	for id, rel := range m.relations {
		if rel.config != nil {
			out = append(out, id)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// PartitioningConfig implements Catalog
func (m *Memory) PartitioningConfig(_ context.Context, relid RelID) (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.installed {
		return nil, nil
	}

	rel, ok := m.relations[relid]
	if !ok || !rel.visible || rel.config == nil {
		return nil, nil
	}

	cfg := *rel.config

	return &cfg, nil
}

// ListChildPartitions implements Catalog
func (m *Memory) ListChildPartitions(_ context.Context, relid RelID) ([]ChildPartition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.relations[relid]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelation, relid)
	}

	children, err := m.graph.GetChildren(vertexID(relid))
	if err != nil {
		return nil, fmt.Errorf("failed to read children of %d: %w", relid, err)
	}

	out := make([]ChildPartition, 0, len(children))
	for id := range children {
		rel, ok := m.relations[parseVertexID(id)]
		if !ok || !rel.visible {
			continue
		}

		out = append(out, rel.bounds)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelID < out[j].RelID })

	return out, nil
}

// LookupRelationParent implements Catalog
func (m *Memory) LookupRelationParent(_ context.Context, relid RelID) (ParentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, ok := m.relations[relid]
	if !ok {
		return ParentInfo{Visible: true}, nil
	}

	if !rel.visible {
		return ParentInfo{Visible: false}, nil
	}

	parent, err := m.parentLocked(relid)
	if err != nil {
		return ParentInfo{}, err
	}

	return ParentInfo{Parent: parent, Visible: true}, nil
}

// TypeMetadata implements Catalog
func (m *Memory) TypeMetadata(_ context.Context, typ TypeOID) (TypeInfo, error) {
	return m.types.Info(typ)
}

// Installed implements Catalog
func (m *Memory) Installed(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.installed, nil
}

// ResolveComparisonFunction implements FunctionResolver
func (m *Memory) ResolveComparisonFunction(typ TypeOID) (bound.CmpFunc, error) {
	return m.types.ResolveComparisonFunction(typ)
}

// ResolveHashFunction implements FunctionResolver
func (m *Memory) ResolveHashFunction(typ TypeOID) (HashFunc, error) {
	return m.types.ResolveHashFunction(typ)
}

// Columns implements ColumnSource
func (m *Memory) Columns(_ context.Context, relid RelID) ([]Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rel, ok := m.relations[relid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelation, relid)
	}

	return append([]Column(nil), rel.columns...), nil
}

func (m *Memory) parentLocked(relid RelID) (RelID, error) {
	parents, err := m.graph.GetParents(vertexID(relid))
	if err != nil {
		return InvalidRelID, fmt.Errorf("failed to read parents of %d: %w", relid, err)
	}

	for id := range parents {
		return parseVertexID(id), nil
	}

	return InvalidRelID, nil
}
