package admin

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/laura-mtm/pkg/gtid"
)

func parseNodeID(r *http.Request) (gtid.NodeID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil || n == 0 {
		return 0, &BadRequestError{Message: "invalid node id: " + raw}
	}
	return gtid.NodeID(n), nil
}

type addNodeRequest struct {
	ID gtid.NodeID `json:"id"`
}

// handleAddNode implements add-node: within the fixed max-nodes bound
// set at construction, it merely flips id's enable bit (spec.md's
// REDESIGN FLAGS: dynamic node addition never mutates max-nodes).
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == 0 || int(req.ID) > s.nc.Config().TotalNodes {
		writeError(w, &BadRequestError{Message: "node id out of range"})
		return
	}

	s.nc.Detector.EnableNode(req.ID)
	writeSuccess(w, map[string]interface{}{"id": req.ID, "enabled": true})
}

// handleDropNode implements drop-node: administratively sets id's
// disabled bit, independent of the watchdog's own view of id's
// reachability.
func (s *Server) handleDropNode(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.nc.Detector.DisableNode(id)
	writeSuccess(w, map[string]interface{}{"id": id, "disabled": true})
}

// handleRecoverNode implements recover-node: {id} names the donor this
// node should open a recovery channel against (spec.md §4.6). The
// detector already starts recovery on its own with an automatically
// selected donor the moment it finds itself excluded from an otherwise
// quorate clique; this endpoint is the operator override for picking a
// specific donor instead, or for kicking off recovery in cases the
// detector didn't (e.g. a fresh node added via add-node).
func (s *Server) handleRecoverNode(w http.ResponseWriter, r *http.Request) {
	donor, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.nc.Recoverer.BeginRecovery(donor)
	writeSuccess(w, map[string]interface{}{"donor": donor, "recovering": true})
}

type nodeState struct {
	ID          gtid.NodeID `json:"id"`
	Self        bool        `json:"self"`
	Unreachable bool        `json:"unreachable"`
	Disabled    bool        `json:"disabled"`
}

func (s *Server) nodeStateFor(id gtid.NodeID) nodeState {
	connMask := s.nc.Detector.ConnectivityMask()
	disabledMask := s.nc.Detector.DisabledMask()
	return nodeState{
		ID:          id,
		Self:        id == s.nc.Config().SelfNode,
		Unreachable: connMask.Has(id),
		Disabled:    disabledMask.Has(id),
	}
}

// handlePollNode implements poll-node: this node's own view of id's
// connectivity and disabled state.
func (s *Server) handlePollNode(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if int(id) > s.nc.Config().TotalNodes {
		writeError(w, &NotFoundError{Message: "no such node"})
		return
	}
	writeSuccess(w, s.nodeStateFor(id))
}

// handleGetNodesState implements get-nodes-state: every node's state as
// seen by this node.
func (s *Server) handleGetNodesState(w http.ResponseWriter, r *http.Request) {
	total := s.nc.Config().TotalNodes
	states := make([]nodeState, 0, total)
	for i := 1; i <= total; i++ {
		states = append(states, s.nodeStateFor(gtid.NodeID(i)))
	}
	writeSuccess(w, states)
}

type clusterState struct {
	SelfNode            gtid.NodeID   `json:"self_node"`
	TotalNodes          int           `json:"total_nodes"`
	Status              string        `json:"status"`
	LiveNodeCount       int           `json:"live_node_count"`
	ConfigChangeCounter uint64        `json:"config_change_counter"`
	DisabledNodes       []gtid.NodeID `json:"disabled_nodes"`
	ClusterLockAsserted bool          `json:"cluster_lock_asserted"`
}

// handleGetClusterState implements get-cluster-state.
func (s *Server) handleGetClusterState(w http.ResponseWriter, r *http.Request) {
	cs := clusterState{
		SelfNode:            s.nc.Config().SelfNode,
		TotalNodes:          s.nc.Config().TotalNodes,
		Status:              s.nc.Detector.Status().String(),
		LiveNodeCount:       s.nc.Detector.LiveNodeCount(),
		ConfigChangeCounter: s.nc.Detector.ConfigChangeCounter(),
		DisabledNodes:       s.nc.Detector.DisabledMask().Members(),
		ClusterLockAsserted: s.nc.ClusterLockAsserted(),
	}
	writeSuccess(w, cs)
}
