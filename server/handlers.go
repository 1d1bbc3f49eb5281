package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/autograph-dev/autograph/flow"
	"github.com/autograph-dev/autograph/flow/store"
)

type deployResponse struct {
	FlowName string `json:"flow_name"`
	Nodes    int    `json:"nodes"`
	Source   string `json:"source"`
}

type kindView struct {
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Description   string         `json:"description"`
	DefaultConfig map[string]any `json:"default_config"`
}

type timelineResponse struct {
	Run     runView       `json:"run"`
	Entries []store.Entry `json:"entries"`
}

type runView struct {
	ID        string `json:"id"`
	FlowName  string `json:"flow_name"`
	Backend   string `json:"backend"`
	StartedAt string `json:"started_at"`
}

func (s *Server) handleDeploy(c fiber.Ctx) error {
	name := c.Params("flow_name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "flow name is required"})
	}

	f, err := flow.Parse(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	prog, err := flow.Compile(f, s.registry)
	if err != nil {
		return writeFlowError(c, err)
	}
	if err := s.persistDeployment(name, f, prog); err != nil {
		s.log.Error("persist deployment", "flow", name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	s.mu.Lock()
	s.flows[name] = &deployment{flow: f, prog: prog}
	s.mu.Unlock()

	s.log.Info("deployed", "flow", name, "nodes", len(f.Nodes))
	return c.Status(fiber.StatusCreated).JSON(deployResponse{
		FlowName: name,
		Nodes:    len(f.Nodes),
		Source:   prog.Source,
	})
}

func (s *Server) handleRun(c fiber.Ctx) error {
	name := c.Params("flow_name")
	dep, err := s.deploymentFor(name)
	if err != nil {
		var gerr *flow.GraphError
		if errors.As(err, &gerr) {
			return writeFlowError(c, err)
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	var input any
	if body := c.Body(); len(body) > 0 {
		input, err = flow.DecodeValue(body)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input: " + err.Error()})
		}
	}

	eng, err := s.engineFor(flow.Hint(c.Query("backend", string(flow.HintAuto))))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := eng.ExecuteNamed(c.Context(), name, dep.prog, input)
	if err != nil {
		s.log.Error("run failed", "flow", name, "error", err)
		return writeFlowError(c, err)
	}

	s.log.Info("run finished", "flow", name, "run_id", res.RunID)
	return c.JSON(res)
}

func (s *Server) handleTimeline(c fiber.Ctx) error {
	runID := c.Params("run_id")

	rec, err := s.store.Run(c.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "run not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	entries, err := s.store.Entries(c.Context(), runID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(timelineResponse{Run: recordView(rec), Entries: entries})
}

func (s *Server) handleListRuns(c fiber.Ctx) error {
	recs, err := s.store.ListRuns(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	views := make([]runView, len(recs))
	for i, rec := range recs {
		views[i] = recordView(rec)
	}
	return c.JSON(fiber.Map{"runs": views})
}

func (s *Server) handleKinds(c fiber.Ctx) error {
	kinds := s.registry.Kinds()
	views := make([]kindView, len(kinds))
	for i, k := range kinds {
		views[i] = kindView{
			Name:          k.Name,
			Category:      k.Category,
			Description:   k.Description,
			DefaultConfig: k.DefaultConfig(),
		}
	}
	return c.JSON(fiber.Map{"kinds": views})
}

func recordView(rec store.RunRecord) runView {
	return runView{
		ID:        rec.ID,
		FlowName:  rec.FlowName,
		Backend:   rec.Backend,
		StartedAt: rec.StartedAt.Format(time.RFC3339Nano),
	}
}

// writeFlowError maps compiler and backend failures to HTTP statuses.
// Validation failures are the client's fault (422); execution failures
// that escape the per-node state machine are the server's (500).
func writeFlowError(c fiber.Ctx, err error) error {
	var gerr *flow.GraphError
	if errors.As(err, &gerr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": fiber.Map{
				"code":     string(gerr.Code),
				"message":  gerr.Message,
				"node_ids": gerr.NodeIDs,
			},
		})
	}
	var berr *flow.BackendError
	if errors.As(err, &berr) {
		status := fiber.StatusInternalServerError
		if berr.Code == flow.CodeBackendCompile {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    string(berr.Code),
				"message": berr.Message,
				"node_id": berr.NodeID,
			},
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
