package coordinator

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dspash/dspash-go/internal/infrastructure/monitoring"
	dserrors "github.com/dspash/dspash-go/internal/pkg/errors"
)

// Metrics returns the manager's Prometheus collector set, for wiring
// /metrics alongside the admin routes.
func (m *Manager) Metrics() *monitoring.Metrics {
	return m.metrics
}

type workerView struct {
	Name             string `json:"name"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Online           bool   `json:"online"`
	RunningProcesses int32  `json:"running_processes"`
}

type placementView struct {
	SubgraphID string `json:"subgraph_id"`
	Worker     string `json:"worker"`
	MergerID   string `json:"merger_id,omitempty"`
	Merger     bool   `json:"is_merger"`
}

// AdminRoutes registers the coordinator's introspection surface: a worker
// table, the current placement table, and a lookup of every subgraph
// belonging to one merger region.
func (m *Manager) AdminRoutes(e *echo.Echo) {
	e.GET("/workers", m.listWorkers)
	e.GET("/placements", m.listPlacements)
	e.GET("/mergers/:id", m.getMerger)
}

func (m *Manager) listWorkers(c echo.Context) error {
	out := make([]workerView, 0, len(m.pool.All()))
	for _, w := range m.pool.All() {
		out = append(out, workerView{
			Name:             w.Name(),
			Host:             w.Host(),
			Port:             w.Port(),
			Online:           w.Online(),
			RunningProcesses: w.RunningProcesses(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (m *Manager) listPlacements(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]placementView, 0, len(m.allPlacements))
	for _, p := range m.allPlacements {
		out = append(out, placementView{
			SubgraphID: p.Subgraph.ID,
			Worker:     p.Worker.Name(),
			MergerID:   p.MergerID,
			Merger:     p.Subgraph.Merger,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (m *Manager) getMerger(c echo.Context) error {
	mergerID := c.Param("id")

	m.mu.Lock()
	defer m.mu.Unlock()

	subIDs, ok := m.mergerToSubgraphs[mergerID]
	if !ok {
		return echoError(c, dserrors.NotFound("merger", mergerID))
	}

	out := make([]placementView, 0, len(subIDs))
	for _, sid := range subIDs {
		p, ok := m.placementBySubgraph[sid]
		if !ok {
			continue
		}
		out = append(out, placementView{
			SubgraphID: p.Subgraph.ID,
			Worker:     p.Worker.Name(),
			MergerID:   p.MergerID,
			Merger:     p.Subgraph.Merger,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func echoError(c echo.Context, err error) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
}
