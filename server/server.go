// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package server provides the JSON HTTP API of the PRE service.
//
// Artifacts are referred to by storage handle. Byte payloads are base64
// in JSON, as encoding/json does for []byte.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mahanfr/GnosisDB/internal/queue"
	"github.com/mahanfr/GnosisDB/internal/service"
	"github.com/mahanfr/GnosisDB/internal/storage"
	"github.com/mahanfr/GnosisDB/pre"
)

const defaultMaxBodyBytes = 64 << 20

// Server serves the PRE API.
type Server struct {
	svc      *service.Service
	store    storage.Storage
	queue    queue.Queue
	gatherer prometheus.Gatherer
	log      *zap.Logger
	maxBody  int64
}

// Option configures a Server.
type Option func(*Server)

// WithQueue enables the /jobs endpoints.
func WithQueue(q queue.Queue) Option {
	return func(s *Server) { s.queue = q }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// New creates a server over svc. store must be the service's store.
func New(svc *service.Service, store storage.Storage, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		store:   store,
		log:     zap.NewNop(),
		maxBody: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /params", s.handleParams)

	mux.HandleFunc("POST /encode", s.handleEncode)
	mux.HandleFunc("POST /keypair", s.handleKeyPair)
	mux.HandleFunc("GET /keypair/{principal}", s.handlePublicKey)
	mux.HandleFunc("POST /encrypt", s.handleEncrypt)
	mux.HandleFunc("POST /rekey", s.handleReKey)
	mux.HandleFunc("POST /reencrypt", s.handleReEncrypt)
	mux.HandleFunc("POST /decrypt", s.handleDecrypt)
	mux.HandleFunc("POST /verify", s.handleVerify)

	mux.HandleFunc("POST /artifacts", s.handleStoreArtifact)
	mux.HandleFunc("GET /artifacts/{handle}", s.handleLoadArtifact)

	if s.queue != nil {
		mux.HandleFunc("POST /jobs", s.handleSubmitJob)
		mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	}
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, pre.ErrHopBudgetExceeded),
		errors.Is(err, service.ErrPrincipalExists):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, service.ErrUnknownPrincipal),
		errors.Is(err, queue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, pre.ErrDecryptionMismatch),
		errors.Is(err, pre.ErrEvalKeyMismatch):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, storage.ErrInvalidHandle),
		errors.Is(err, pre.ErrPayloadTooLarge),
		errors.Is(err, pre.ErrInvalidEncoding),
		errors.Is(err, pre.ErrMalformedKey):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrStorageFull),
		errors.Is(err, pre.ErrResourceExhausted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// decode reads a JSON request body into v.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"principals": s.svc.Principals(),
		"jobs":       s.queue != nil,
	})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Params())
}

// EncodeRequest asks for the residue encoding of Data.
type EncodeRequest struct {
	Data []byte `json:"data"`
}

type EncodeResponse struct {
	Residues []int64 `json:"residues"`
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req EncodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	residues, err := s.svc.Encode(req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EncodeResponse{Residues: residues})
}

// KeyPairRequest registers a principal.
type KeyPairRequest struct {
	Principal string `json:"principal"`
}

func (s *Server) handleKeyPair(w http.ResponseWriter, r *http.Request) {
	var req KeyPairRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.svc.GenKeyPair(r.Context(), req.Principal)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.PublicKey(r.PathValue("principal"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

// EncryptRequest encrypts Data under the public key at PublicKey.
type EncryptRequest struct {
	PublicKey storage.Handle `json:"publicKey"`
	Data      []byte         `json:"data"`
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.svc.Encrypt(r.Context(), req.PublicKey, req.Data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

// ReKeyRequest derives a re-encryption key from Principal to the public
// key at Target.
type ReKeyRequest struct {
	Principal string         `json:"principal"`
	Target    storage.Handle `json:"target"`
}

func (s *Server) handleReKey(w http.ResponseWriter, r *http.Request) {
	var req ReKeyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.svc.GenReKey(r.Context(), req.Principal, req.Target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

type ReEncryptRequest struct {
	Ciphertext storage.Handle `json:"ciphertext"`
	ReKey      storage.Handle `json:"rekey"`
}

func (s *Server) handleReEncrypt(w http.ResponseWriter, r *http.Request) {
	var req ReEncryptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.svc.ReEncrypt(r.Context(), req.Ciphertext, req.ReKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

type DecryptRequest struct {
	Principal  string         `json:"principal"`
	Ciphertext storage.Handle `json:"ciphertext"`
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req DecryptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.svc.Decrypt(r.Context(), req.Principal, req.Ciphertext)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// VerifyRequest compares two decryptions with the encoding of Data.
type VerifyRequest struct {
	Data      []byte  `json:"data"`
	Direct    []int64 `json:"direct"`
	Delegated []int64 `json:"delegated"`
}

type VerifyResponse struct {
	Pass              bool `json:"pass"`
	DirectMismatch    int  `json:"directMismatch"`
	DelegatedMismatch int  `json:"delegatedMismatch"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v := s.svc.Verify(req.Data, req.Direct, req.Delegated)
	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Pass:              v.Pass,
		DirectMismatch:    v.DirectMismatch,
		DelegatedMismatch: v.DelegatedMismatch,
	})
}

func (s *Server) handleStoreArtifact(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(data) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: empty artifact", service.ErrInvalidRequest))
		return
	}
	h, err := s.store.Store(r.Context(), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]storage.Handle{"handle": h})
}

func (s *Server) handleLoadArtifact(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Load(r.Context(), storage.Handle(r.PathValue("handle")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// JobRequest queues an operation; see queue.Job for the fields each
// operation reads.
type JobRequest struct {
	Operation   queue.Op `json:"operation"`
	Principal   string   `json:"principal,omitempty"`
	KeyHandle   string   `json:"key_handle,omitempty"`
	InputHandle string   `json:"input_handle,omitempty"`
	Payload     []byte   `json:"payload,omitempty"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Operation.Valid() {
		s.writeError(w, r, fmt.Errorf("%w: unsupported operation %q", service.ErrInvalidRequest, req.Operation))
		return
	}

	job := &queue.Job{
		Operation:   req.Operation,
		Principal:   req.Principal,
		KeyHandle:   req.KeyHandle,
		InputHandle: req.InputHandle,
		Payload:     req.Payload,
	}
	if err := s.queue.Push(r.Context(), job); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
