package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hallcore/corefw/corefw/protocol"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// frame builds a 64-byte command frame from a command id and payload
// bytes, truncating payload if it overruns the frame.
func frame(cmd byte, payload []byte) [protocol.FrameSize]byte {
	var f [protocol.FrameSize]byte
	f[0] = cmd
	copy(f[1:], payload)
	return f
}

type statusResponse struct {
	Layer      int `json:"layer"`
	Profile    int `json:"profile"`
	TickRateHz int `json:"tick_rate_hz"`
	NumKeys    int `json:"num_keys"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := s.dispatcher.Handle(frame(protocol.CmdGetStatus, nil))
	if resp[0] == 0xFF {
		writeError(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusResponse{
		Layer:      int(resp[1]),
		Profile:    int(resp[2]),
		TickRateHz: int(resp[3]) | int(resp[4])<<8,
		NumKeys:    int(resp[5]),
	})
}

// pagedQuery parses ?offset=&len= from the query string.
func pagedQuery(r *http.Request) (offset, length int, ok bool) {
	o, err1 := strconv.Atoi(r.URL.Query().Get("offset"))
	l, err2 := strconv.Atoi(r.URL.Query().Get("len"))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return o, l, true
}

type pagedWriteRequest struct {
	Offset int    `json:"offset"`
	Data   []byte `json:"data"` // base64 via encoding/json's []byte handling
}

func (s *Server) handlePagedRead(w http.ResponseWriter, r *http.Request, cmd byte) {
	offset, length, ok := pagedQuery(r)
	if !ok {
		writeError(w, "offset and len query params required", http.StatusBadRequest)
		return
	}
	payload := make([]byte, 3)
	payload[0] = byte(offset)
	payload[1] = byte(offset >> 8)
	payload[2] = byte(length)
	resp := s.dispatcher.Handle(frame(cmd, payload))
	if resp[0] == 0xFF {
		writeError(w, "read failed", http.StatusBadRequest)
		return
	}
	n := int(resp[3])
	writeJSON(w, map[string]interface{}{
		"offset": int(resp[1]) | int(resp[2])<<8,
		"data":   resp[4 : 4+n],
	})
}

func (s *Server) handlePagedWrite(w http.ResponseWriter, r *http.Request, cmd byte) {
	var req pagedWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	payload := make([]byte, 3+len(req.Data))
	payload[0] = byte(req.Offset)
	payload[1] = byte(req.Offset >> 8)
	payload[2] = byte(len(req.Data))
	copy(payload[3:], req.Data)
	resp := s.dispatcher.Handle(frame(cmd, payload))
	if resp[0] == 0xFF {
		writeError(w, "write failed", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleKeymap(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handlePagedRead(w, r, protocol.CmdReadKeymap)
	case http.MethodPost:
		s.handlePagedWrite(w, r, protocol.CmdWriteKeymap)
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAdvancedKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handlePagedRead(w, r, protocol.CmdReadAdvancedKeys)
	case http.MethodPost:
		s.handlePagedWrite(w, r, protocol.CmdWriteAdvancedKeys)
	case http.MethodDelete:
		resp := s.dispatcher.Handle(frame(protocol.CmdClearAdvanced, nil))
		if resp[0] == 0xFF {
			writeError(w, "clear failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type actuationRequest struct {
	Key        int  `json:"key"`
	Point      byte `json:"point"`
	RTDown     byte `json:"rt_down"`
	RTUp       byte `json:"rt_up"`
	Continuous bool `json:"continuous"`
}

func (s *Server) handleActuation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		key, err := strconv.Atoi(r.URL.Query().Get("key"))
		if err != nil {
			writeError(w, "key query param required", http.StatusBadRequest)
			return
		}
		resp := s.dispatcher.Handle(frame(protocol.CmdGetActuation, []byte{byte(key)}))
		if resp[0] == 0xFF {
			writeError(w, "unknown key", http.StatusBadRequest)
			return
		}
		writeJSON(w, actuationRequest{
			Key: key, Point: resp[2], RTDown: resp[3], RTUp: resp[4], Continuous: resp[5] != 0,
		})
	case http.MethodPost:
		var req actuationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		cont := byte(0)
		if req.Continuous {
			cont = 1
		}
		payload := []byte{byte(req.Key), req.Point, req.RTDown, req.RTUp, cont}
		resp := s.dispatcher.Handle(frame(protocol.CmdSetActuation, payload))
		if resp[0] == 0xFF {
			writeError(w, "set actuation failed", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type gamepadOptionsRequest struct {
	XInputEnabled   bool `json:"xinput_enabled"`
	KeyboardEnabled bool `json:"keyboard_enabled"`
}

func (s *Server) handleGamepadOptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := s.dispatcher.Handle(frame(protocol.CmdReadGamepadOptions, nil))
		writeJSON(w, gamepadOptionsRequest{XInputEnabled: resp[1] != 0, KeyboardEnabled: resp[2] != 0})
	case http.MethodPost:
		var req gamepadOptionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		xi, kb := byte(0), byte(0)
		if req.XInputEnabled {
			xi = 1
		}
		if req.KeyboardEnabled {
			kb = 1
		}
		resp := s.dispatcher.Handle(frame(protocol.CmdWriteGamepadOptions, []byte{xi, kb}))
		if resp[0] == 0xFF {
			writeError(w, "set gamepad options failed", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := s.dispatcher.Handle(frame(protocol.CmdGetProfile, nil))
		writeJSON(w, map[string]int{"profile": int(resp[1])})
	case http.MethodPost:
		var req struct {
			Profile int `json:"profile"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		resp := s.dispatcher.Handle(frame(protocol.CmdSetProfile, []byte{byte(req.Profile)}))
		if resp[0] == 0xFF {
			writeError(w, "set profile failed", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTickRate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := s.dispatcher.Handle(frame(protocol.CmdReadTickRate, nil))
		writeJSON(w, map[string]int{"tick_rate_hz": int(resp[1]) | int(resp[2])<<8})
	case http.MethodPost:
		var req struct {
			TickRateHz int `json:"tick_rate_hz"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		resp := s.dispatcher.Handle(frame(protocol.CmdWriteTickRate, []byte{byte(req.TickRateHz), byte(req.TickRateHz >> 8)}))
		if resp[0] == 0xFF {
			writeError(w, "set tick rate failed", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
