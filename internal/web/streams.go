package web

import (
	"net/http"

	"github.com/ehsanking/elahe-messenger/internal/forwarder"
)

func (s *Server) StreamsHandler(w http.ResponseWriter, r *http.Request) {
	streams := s.streams.Snapshot()
	if streams == nil {
		streams = []forwarder.StreamInfo{}
	}
	writeJSON(w, streams)
}

// KillHandler closes one stream; the remote end is told with an EOF.
func (s *Server) KillHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing stream ID", http.StatusBadRequest)
		return
	}
	if !s.streams.Close(id) {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Stream terminated"))
	s.log.Info().Str("stream_id", id).Msg("Stream terminated from status server")
}
