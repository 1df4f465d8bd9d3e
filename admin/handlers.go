package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/tailer"
	"github.com/rs/zerolog/log"
)

// StreamStatus is the read side of a running river.Stream
type StreamStatus interface {
	State() tailer.State
	Records() uint64
	Events() uint64
	LastOptime() (oplog.Position, bool)
}

// OutletStatus is the read side of a publisher.Outlet
type OutletStatus interface {
	Published() uint64
	Pipelines() []string
}

// Checkpoints is the subset of publisher.CheckpointStore the admin API uses
type Checkpoints interface {
	Names() []string
	Get(name string) (oplog.Position, bool, error)
	Delete(name string) error
	Minimum() (oplog.Position, bool)
}

// AdminHandlers serves stream, sink and checkpoint state
type AdminHandlers struct {
	stream      StreamStatus
	outlet      OutletStatus
	checkpoints Checkpoints // nil when checkpointing is disabled
	nodeID      uint64
	started     time.Time
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(nodeID uint64, stream StreamStatus, outlet OutletStatus, checkpoints Checkpoints) *AdminHandlers {
	return &AdminHandlers{
		stream:      stream,
		outlet:      outlet,
		checkpoints: checkpoints,
		nodeID:      nodeID,
		started:     time.Now(),
	}
}

// positionView renders an optime for humans and for resuming with --start
type positionView struct {
	T        uint32 `json:"t"`
	I        uint32 `json:"i"`
	Optime   string `json:"optime"`
	WallTime string `json:"wall_time"`
}

func viewOf(pos oplog.Position) positionView {
	return positionView{
		T:        pos.T,
		I:        pos.I,
		Optime:   pos.String(),
		WallTime: pos.Time().UTC().Format(time.RFC3339),
	}
}

// handleHealth reports liveness
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{"status": "ok"})
}

// handleStatus reports stream progress and sink counters
func (h *AdminHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"node_id":        h.nodeID,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}

	if h.stream != nil {
		response["state"] = h.stream.State().String()
		response["records"] = h.stream.Records()
		response["events"] = h.stream.Events()
		if pos, ok := h.stream.LastOptime(); ok {
			response["last_optime"] = viewOf(pos)
			response["lag_seconds"] = time.Since(pos.Time()).Seconds()
		}
	}

	if h.outlet != nil {
		response["published"] = h.outlet.Published()
		response["sinks"] = h.outlet.Pipelines()
	}

	writeJSONResponse(w, response)
}

// handleListCheckpoints lists every stored checkpoint
func (h *AdminHandlers) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	if h.checkpoints == nil {
		writeErrorResponse(w, http.StatusNotFound, "checkpointing is disabled")
		return
	}

	items := make(map[string]positionView)
	for _, name := range h.checkpoints.Names() {
		pos, ok, err := h.checkpoints.Get(name)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			items[name] = viewOf(pos)
		}
	}

	response := map[string]interface{}{
		"checkpoints": items,
	}
	if min, ok := h.checkpoints.Minimum(); ok {
		response["minimum"] = viewOf(min)
	}

	writeJSONResponse(w, response)
}

// handleGetCheckpoint returns one checkpoint
func (h *AdminHandlers) handleGetCheckpoint(w http.ResponseWriter, r *http.Request, name string) {
	if h.checkpoints == nil {
		writeErrorResponse(w, http.StatusNotFound, "checkpointing is disabled")
		return
	}

	pos, ok, err := h.checkpoints.Get(name)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "checkpoint '"+name+"' not found")
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"name":     name,
		"position": viewOf(pos),
	})
}

// handleDeleteCheckpoint forgets a checkpoint. A running pipeline that owns
// the name writes it again on its next publish.
func (h *AdminHandlers) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request, name string) {
	if h.checkpoints == nil {
		writeErrorResponse(w, http.StatusNotFound, "checkpointing is disabled")
		return
	}

	if _, ok, err := h.checkpoints.Get(name); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	} else if !ok {
		writeErrorResponse(w, http.StatusNotFound, "checkpoint '"+name+"' not found")
		return
	}

	if err := h.checkpoints.Delete(name); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("checkpoint", name).Msg("Checkpoint deleted via admin API")
	writeJSONResponse(w, map[string]interface{}{"deleted": name})
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := map[string]interface{}{
		"error": message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
