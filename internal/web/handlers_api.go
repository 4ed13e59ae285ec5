package web

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

const (
	maxBodyBytes    = 1 << 20
	maxPayloadBytes = 128
	maxScanDuration = 14
)

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Info())
}

// handleAPICounters reads counters from the NCP. ?cached=true returns the
// last snapshot from the store instead, which works while the NCP is down.
func (s *Server) handleAPICounters(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("cached") == "true" {
		snap, err := s.ctrl.Store().GetCounters()
		if err != nil {
			s.writeError(w, "get counters", err)
			return
		}
		s.writeJSON(w, http.StatusOK, snap)
		return
	}

	values, err := s.ctrl.Counters(r.Context())
	if err != nil {
		s.writeError(w, "read counters", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"values": values})
}

type permitJoinRequest struct {
	Duration *int `json:"duration"`
}

func (s *Server) handleAPIPermitJoin(w http.ResponseWriter, r *http.Request) {
	var req permitJoinRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	duration := 254
	if req.Duration != nil {
		duration = *req.Duration
	}
	if duration < 0 || duration > 255 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration must be 0-255"})
		return
	}

	if err := s.ctrl.PermitJoin(r.Context(), uint8(duration)); err != nil {
		s.writeError(w, "permit join", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "duration": duration})
}

func (s *Server) handleAPIGetBackup(w http.ResponseWriter, r *http.Request) {
	b, err := s.ctrl.Store().GetBackup()
	if err != nil {
		s.writeError(w, "get backup", err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAPIRefreshBackup(w http.ResponseWriter, r *http.Request) {
	b, err := s.ctrl.Backup(r.Context())
	if err != nil {
		s.writeError(w, "backup", err)
		return
	}
	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAPIListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.ctrl.Nodes()
	if err != nil {
		s.writeError(w, "list nodes", err)
		return
	}
	if nodes == nil {
		nodes = []*store.Node{}
	}
	s.writeJSON(w, http.StatusOK, nodes)
}

// nodeKey normalizes the {eui64} path value to the form nodes are stored under.
func nodeKey(r *http.Request) (string, error) {
	eui, err := ezsp.ParseEUI64(r.PathValue("eui64"))
	if err != nil {
		return "", err
	}
	return eui.String(), nil
}

func (s *Server) handleAPIGetNode(w http.ResponseWriter, r *http.Request) {
	key, err := nodeKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := s.ctrl.Store().GetNode(key)
	if err != nil {
		s.writeError(w, "get node", err)
		return
	}
	s.writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleAPIDeleteNode(w http.ResponseWriter, r *http.Request) {
	key, err := nodeKey(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, err := s.ctrl.Store().GetNode(key); err != nil {
		s.writeError(w, "get node", err)
		return
	}
	if err := s.ctrl.Store().DeleteNode(key); err != nil {
		s.writeError(w, "delete node", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	Channels []uint8 `json:"channels"`
	Duration *uint8  `json:"duration"`
}

// params validates the request and returns the channel mask and duration.
func (req scanRequest) params() (uint32, uint8, error) {
	var mask uint32
	for _, ch := range req.Channels {
		if ch < 11 || ch > 26 {
			return 0, 0, fmt.Errorf("channel %d out of range 11-26", ch)
		}
		mask |= 1 << ch
	}
	duration := coordinator.DefaultScanDuration
	if req.Duration != nil {
		duration = *req.Duration
	}
	if duration > maxScanDuration {
		return 0, 0, fmt.Errorf("duration must be 0-%d", maxScanDuration)
	}
	return mask, duration, nil
}

func (s *Server) handleAPIEnergyScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	mask, duration, err := req.params()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	results, err := s.ctrl.EnergyScan(r.Context(), mask, duration)
	if err != nil {
		s.writeError(w, "energy scan", err)
		return
	}
	if results == nil {
		results = []coordinator.EnergyResult{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleAPIActiveScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	mask, duration, err := req.params()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	found, err := s.ctrl.ActiveScan(r.Context(), mask, duration)
	if err != nil {
		s.writeError(w, "active scan", err)
		return
	}
	if found == nil {
		found = []ezsp.NetworkFoundCallback{}
	}
	s.writeJSON(w, http.StatusOK, found)
}

type sendRequest struct {
	Destination uint16        `json:"destination"`
	Broadcast   bool          `json:"broadcast"`
	Aps         ezsp.ApsFrame `json:"aps"`
	Payload     string        `json:"payload"`
}

func (s *Server) handleAPISend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	payload, err := hex.DecodeString(strings.ReplaceAll(req.Payload, " ", ""))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload must be hex"})
		return
	}
	if len(payload) > maxPayloadBytes {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payload limited to 128 bytes"})
		return
	}
	if req.Broadcast != ezsp.IsBroadcastAddress(req.Destination) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("destination 0x%04X does not match broadcast=%t", req.Destination, req.Broadcast),
		})
		return
	}

	var tag uint16
	if req.Broadcast {
		tag, err = s.ctrl.SendBroadcast(r.Context(), req.Destination, req.Aps, payload)
	} else {
		tag, err = s.ctrl.SendUnicast(r.Context(), req.Destination, req.Aps, payload)
	}
	if err != nil {
		s.writeError(w, "send", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "tag": tag})
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched. It writes a 400 and returns false on malformed input.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps coordinator and store errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, coordinator.ErrNotStarted):
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		s.logger.Error(op, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
