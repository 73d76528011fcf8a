// Package inspector manages Widget Inspector object group lifetimes
// and exposes the fetch-tree/fetch-details flow built on top of
// internal/vmservice's raw extension calls.
package inspector

import (
	"context"
	"fmt"
	"sync"

	"github.com/flutter-demon/fdemon/internal/fdebug"
	"github.com/flutter-demon/fdemon/internal/types"
	"github.com/flutter-demon/fdemon/internal/vmservice"
)

// ObjectGroupManager tracks a single active Widget Inspector object
// group, automatically disposing the previous group when a new one is
// created so references never leak across fetches.
//
// References (valueId) returned by inspector calls are only valid
// while the group that produced them still exists.
type ObjectGroupManager struct {
	client    *vmservice.Client
	isolateID string

	mu           sync.Mutex
	activeGroup  string
	hasActive    bool
	groupCounter uint32
}

func NewObjectGroupManager(client *vmservice.Client, isolateID string) *ObjectGroupManager {
	return &ObjectGroupManager{client: client, isolateID: isolateID}
}

// CreateGroup disposes the previous active group (if any) and starts a
// new one, returning its name.
func (m *ObjectGroupManager) CreateGroup(ctx context.Context) (string, error) {
	m.mu.Lock()
	prev, hadPrev := m.activeGroup, m.hasActive
	m.groupCounter++
	name := fmt.Sprintf("fdemon-inspector-%d", m.groupCounter)
	m.activeGroup, m.hasActive = name, true
	m.mu.Unlock()

	if hadPrev {
		if err := m.DisposeGroup(ctx, prev); err != nil {
			// Non-fatal: the old group leaks server-side until the next
			// hot restart, but the new group is still usable.
			fdebug.Logf("inspector: failed to dispose previous group %s: %v", prev, err)
		}
	}
	return name, nil
}

// DisposeGroup releases every reference fetched under groupName via
// ext.flutter.inspector.disposeGroup. Any valueId obtained under it
// becomes invalid.
func (m *ObjectGroupManager) DisposeGroup(ctx context.Context, groupName string) error {
	_, err := vmservice.CallExtension(ctx, m.client, vmservice.ExtDisposeGroup, m.isolateID, map[string]string{
		"objectGroup": groupName,
	})
	return err
}

// ActiveGroup returns the current group name, if any.
func (m *ObjectGroupManager) ActiveGroup() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeGroup, m.hasActive
}

// GroupCounter returns the number of groups created so far.
func (m *ObjectGroupManager) GroupCounter() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groupCounter
}

// DisposeAll disposes the active group, if any, and clears it. A no-op
// when there is no active group.
func (m *ObjectGroupManager) DisposeAll(ctx context.Context) error {
	m.mu.Lock()
	group, had := m.activeGroup, m.hasActive
	m.hasActive = false
	m.activeGroup = ""
	m.mu.Unlock()

	if !had {
		return nil
	}
	return m.DisposeGroup(ctx, group)
}

// WidgetInspector is the high-level entry point the engine drives: it
// owns an ObjectGroupManager and exposes tree/details/selected fetches
// without callers needing to manage group lifetimes themselves.
type WidgetInspector struct {
	client    *vmservice.Client
	isolateID string
	groups    *ObjectGroupManager
}

func NewWidgetInspector(client *vmservice.Client, isolateID string) *WidgetInspector {
	return &WidgetInspector{
		client:    client,
		isolateID: isolateID,
		groups:    NewObjectGroupManager(client, isolateID),
	}
}

// FetchTree creates a new object group (disposing the previous one)
// and returns the root widget summary tree under it.
func (w *WidgetInspector) FetchTree(ctx context.Context) (types.DiagnosticsNode, error) {
	group, err := w.groups.CreateGroup(ctx)
	if err != nil {
		return types.DiagnosticsNode{}, err
	}
	return vmservice.GetRootWidgetTree(ctx, w.client, w.isolateID, group)
}

// FetchDetails returns the detailed subtree for valueID, which must
// have been obtained under the currently active group (i.e. since the
// most recent FetchTree call).
func (w *WidgetInspector) FetchDetails(ctx context.Context, valueID string) (types.DiagnosticsNode, error) {
	group, ok := w.groups.ActiveGroup()
	if !ok {
		return types.DiagnosticsNode{}, fmt.Errorf("inspector: no active object group, call FetchTree first")
	}
	return vmservice.GetDetailsSubtree(ctx, w.client, w.isolateID, valueID, group, 2)
}

// FetchSelected returns the widget currently selected in the inspector
// overlay, or nil if nothing is selected.
func (w *WidgetInspector) FetchSelected(ctx context.Context) (*types.DiagnosticsNode, error) {
	group, ok := w.groups.ActiveGroup()
	if !ok {
		return nil, fmt.Errorf("inspector: no active object group, call FetchTree first")
	}
	return vmservice.GetSelectedWidget(ctx, w.client, w.isolateID, group)
}

// Dispose releases all object groups and the references they hold.
func (w *WidgetInspector) Dispose(ctx context.Context) error {
	return w.groups.DisposeAll(ctx)
}
