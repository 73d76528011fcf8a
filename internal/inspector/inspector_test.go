package inspector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flutter-demon/fdemon/internal/vmservice"
)

// fakeVMService records every method called and the objectGroup param
// (if present), replying with a minimal valid result for each known
// extension method.
type fakeVMService struct {
	mu      sync.Mutex
	methods []string
	groups  []string
}

func (f *fakeVMService) record(method string, params json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
	var p struct {
		ObjectGroup string `json:"objectGroup"`
	}
	_ = json.Unmarshal(params, &p)
	f.groups = append(f.groups, p.ObjectGroup)
}

func (f *fakeVMService) calledMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.methods))
	copy(out, f.methods)
	return out
}

func newFakeVMServiceServer(t *testing.T, fake *fakeVMService) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     uint64          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			require.NoError(t, json.Unmarshal(data, &req))
			fake.record(req.Method, req.Params)

			var result interface{}
			switch req.Method {
			case vmservice.ExtGetRootWidgetTree:
				result = map[string]interface{}{"description": "MyApp", "hasChildren": true, "valueId": "objects/1"}
			case vmservice.ExtGetDetailsSubtree:
				result = map[string]interface{}{"description": "Container", "hasChildren": false}
			case vmservice.ExtGetSelectedWidget:
				result = nil
			case vmservice.ExtDisposeGroup:
				result = map[string]interface{}{}
			default:
				result = map[string]interface{}{}
			}

			resp, err := json.Marshal(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID, "result": result,
			})
			require.NoError(t, err)
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func connectTestClient(t *testing.T, url string) *vmservice.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := vmservice.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreateGroupDisposesPreviousGroup(t *testing.T) {
	fake := &fakeVMService{}
	srv, url := newFakeVMServiceServer(t, fake)
	defer srv.Close()
	client := connectTestClient(t, url)

	mgr := NewObjectGroupManager(client, "isolates/1")
	ctx := context.Background()

	first, err := mgr.CreateGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fdemon-inspector-1", first)

	second, err := mgr.CreateGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fdemon-inspector-2", second)

	assert.Contains(t, fake.calledMethods(), vmservice.ExtDisposeGroup)
	active, ok := mgr.ActiveGroup()
	assert.True(t, ok)
	assert.Equal(t, "fdemon-inspector-2", active)
	assert.Equal(t, uint32(2), mgr.GroupCounter())
}

func TestDisposeAllIsNoOpWithoutActiveGroup(t *testing.T) {
	fake := &fakeVMService{}
	srv, url := newFakeVMServiceServer(t, fake)
	defer srv.Close()
	client := connectTestClient(t, url)

	mgr := NewObjectGroupManager(client, "isolates/1")
	require.NoError(t, mgr.DisposeAll(context.Background()))
	assert.NotContains(t, fake.calledMethods(), vmservice.ExtDisposeGroup)
}

func TestWidgetInspectorFetchTreeThenDetails(t *testing.T) {
	fake := &fakeVMService{}
	srv, url := newFakeVMServiceServer(t, fake)
	defer srv.Close()
	client := connectTestClient(t, url)

	insp := NewWidgetInspector(client, "isolates/1")
	ctx := context.Background()

	tree, err := insp.FetchTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MyApp", tree.Description)

	details, err := insp.FetchDetails(ctx, tree.ValueID)
	require.NoError(t, err)
	assert.Equal(t, "Container", details.Description)
}

func TestWidgetInspectorFetchDetailsWithoutTreeErrors(t *testing.T) {
	fake := &fakeVMService{}
	srv, url := newFakeVMServiceServer(t, fake)
	defer srv.Close()
	client := connectTestClient(t, url)

	insp := NewWidgetInspector(client, "isolates/1")
	_, err := insp.FetchDetails(context.Background(), "objects/1")
	assert.Error(t, err)
}

func TestWidgetInspectorFetchSelectedNilWhenNoneSelected(t *testing.T) {
	fake := &fakeVMService{}
	srv, url := newFakeVMServiceServer(t, fake)
	defer srv.Close()
	client := connectTestClient(t, url)

	insp := NewWidgetInspector(client, "isolates/1")
	ctx := context.Background()
	_, err := insp.FetchTree(ctx)
	require.NoError(t, err)

	selected, err := insp.FetchSelected(ctx)
	require.NoError(t, err)
	assert.Nil(t, selected)
}
