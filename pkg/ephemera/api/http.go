// Package api implements the HTTP submit/query surface and the WebSocket
// admin surface spec §6 names as external collaborators. HTTP handler
// wiring is explicitly out of scope for the core (spec §1 non-goals), but a
// complete node needs one, so it is built here the same way the rest of the
// retrieval pack reaches for stdlib net/http directly rather than a router
// library — none of the example repos import chi/gin/mux.
package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/engine"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/storage"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// ErrBadBlockHash is returned when a path segment does not decode to a
// 32-byte block hash.
var ErrBadBlockHash = errors.New("api: malformed block hash")

// Server wires the submit/query HTTP handlers (spec §6 "Submit API",
// "Query API") against a running Engine and Store.
type Server struct {
	engine   *engine.Engine
	store    storage.Store
	hub      *Hub
	gatherer prometheus.Gatherer
	log      logging.Logger
}

func NewServer(e *engine.Engine, store storage.Store, hub *Hub, gatherer prometheus.Gatherer, log logging.Logger) *Server {
	return &Server{engine: e, store: store, hub: hub, gatherer: gatherer, log: log.Named("api")}
}

// Handler builds the full mux: submit, query, hello, metrics, and the admin
// websocket upgrade.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ephemera/hello", s.handleHello)
	mux.HandleFunc("POST /submit_message", s.handleSubmit)
	mux.HandleFunc("GET /block/{id}", s.handleBlockByID)
	mux.HandleFunc("GET /block/height/{height}", s.handleBlockByHeight)
	mux.HandleFunc("GET /block/last", s.handleLastBlock)
	mux.HandleFunc("GET /block/{id}/certificates", s.handleCertificates)
	mux.HandleFunc("GET /message/{request_id}", s.handleMessageByRequestID)
	if s.hub != nil {
		mux.HandleFunc("GET /ephemera/ws", s.hub.ServeHTTP)
	}
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// wireSignedMessage is the JSON shape of a SignedMessage accepted by submit_message.
type wireSignedMessage struct {
	RequestId       string `json:"request_id"`
	CustomId        string `json:"custom_id,omitempty"`
	Bytes           []byte `json:"bytes"`
	SignerPublicKey []byte `json:"signer_public_key"`
	Signature       string `json:"signature"`
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var wire wireSignedMessage
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request")
		return
	}
	sm := types.SignedMessage{
		Message: types.Message{
			RequestId: wire.RequestId,
			CustomId:  wire.CustomId,
			Bytes:     wire.Bytes,
		},
		SignerPublicKey: wire.SignerPublicKey,
		Signature:       wire.Signature,
	}

	if err := s.engine.SubmitMessage(sm); err != nil {
		switch {
		case errors.Is(err, errs.ErrVerificationFailed):
			writeError(w, http.StatusBadRequest, "verification_failed")
		case errors.Is(err, errs.ErrOverloaded):
			writeError(w, http.StatusTooManyRequests, "overloaded")
		default:
			writeError(w, http.StatusInternalServerError, "internal")
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBlockByID(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_block_id")
		return
	}
	blk, ok, err := s.store.GetBlockByID(hash)
	s.respondBlock(w, blk, ok, err)
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(r.PathValue("height"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_height")
		return
	}
	blk, ok, err := s.store.GetBlockByHeight(height)
	s.respondBlock(w, blk, ok, err)
}

func (s *Server) handleLastBlock(w http.ResponseWriter, r *http.Request) {
	blk, ok, err := s.store.GetLastBlock()
	s.respondBlock(w, blk, ok, err)
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_block_id")
		return
	}
	certs, ok, err := s.store.GetBlockCertificates(hash)
	if err != nil {
		s.log.Errorw("certificates query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, certs)
}

func (s *Server) handleMessageByRequestID(w http.ResponseWriter, r *http.Request) {
	sm, ok, err := s.store.GetMessageByRequestID(r.PathValue("request_id"))
	if err != nil {
		s.log.Errorw("message query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, sm)
}

func (s *Server) respondBlock(w http.ResponseWriter, blk types.Block, ok bool, err error) {
	if err != nil {
		s.log.Errorw("block query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage_error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

func parseBlockHash(s string) (types.BlockHash, error) {
	var hash types.BlockHash
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(hash) {
		return hash, ErrBadBlockHash
	}
	copy(hash[:], raw)
	return hash, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]string{"error": kind})
}
