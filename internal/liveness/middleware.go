package liveness

import (
	"encoding/json"
	"net/http"
	"strings"
)

// PingerPortPath is the discovery path clients probe to find the control
// channel. Matched as a prefix; every other path falls through.
const PingerPortPath = "/on-demand-entries-pinger-port"

type portResponse struct {
	Port int `json:"port"`
}

// PortMiddleware returns middleware that answers the port-discovery endpoint
// ahead of the main asset-serving pipeline. The port is read lazily so the
// middleware can be mounted before the tracker has bound.
func PortMiddleware(port func() int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, PingerPortPath) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(portResponse{Port: port()})
		})
	}
}
