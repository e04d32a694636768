package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// pinMatches compares the SHA-256 hex digest of pin to storedHash in constant time.
func pinMatches(pin, storedHash string) bool {
	sum := sha256.Sum256([]byte(pin))
	submitted := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(strings.ToLower(strings.TrimSpace(storedHash)))) == 1
}

func (s *Server) handleVerifyPin(rw http.ResponseWriter, req *http.Request) {
	var body struct {
		Pin string `json:"pin"`
	}
	if err := decodeJSON(req, &body); err != nil || body.Pin == "" {
		writeError(rw, http.StatusBadRequest, "Missing PIN")
		return
	}
	if s.cfg.PinHash == "" {
		writeError(rw, http.StatusInternalServerError, "PIN not configured on server")
		return
	}

	valid := pinMatches(body.Pin, s.cfg.PinHash)

	// Every answer takes the same fixed time.
	select {
	case <-time.After(s.cfg.PinDelay):
	case <-req.Context().Done():
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"valid": valid})
}
