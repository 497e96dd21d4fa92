// Package server implements the HTTP command API for the term store
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glossarium/termstore/internal/logger"
	"github.com/glossarium/termstore/internal/metrics"
	"github.com/glossarium/termstore/pkg/changerequest"
	"github.com/glossarium/termstore/pkg/collection"
	"github.com/glossarium/termstore/pkg/concept"
	"github.com/glossarium/termstore/pkg/merge"
	"github.com/glossarium/termstore/pkg/review"
	"github.com/glossarium/termstore/pkg/storage"
)

// Config holds the API server configuration.
type Config struct {
	Port            int
	WorkingCopyPath string
}

// Server exposes the term store managers over HTTP.
type Server struct {
	working        *storage.WorkingCopy
	concepts       *concept.Manager
	collections    *collection.Manager
	changeRequests *changerequest.Manager
	reviews        *review.Manager
	workflow       *merge.Workflow

	router  *gin.Engine
	http    *http.Server
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewServer opens the working copy and wires up all managers and
// routes. metrics may be nil.
func NewServer(cfg Config, log *logger.Logger, m *metrics.Metrics) (*Server, error) {
	w := &storage.WorkingCopy{Path: cfg.WorkingCopyPath}
	if err := w.Open(); err != nil {
		return nil, fmt.Errorf("failed to open working copy: %w", err)
	}

	colls := collection.NewManager(w)
	concepts := concept.NewManager(w, colls)
	crs := changerequest.NewManager(w)
	reviews := review.NewManager(w)

	s := &Server{
		working:        w,
		concepts:       concepts,
		collections:    colls,
		changeRequests: crs,
		reviews:        reviews,
		workflow: &merge.Workflow{
			Concepts:       concepts,
			ChangeRequests: crs,
			Reviews:        reviews,
		},
		log:     log,
		metrics: m,
	}

	gin.SetMode(gin.ReleaseMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestID(), s.observe())
	s.routes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	cr := r.Group("/change-requests")
	{
		cr.POST("", s.initializeDraft)
		cr.GET("", s.listChangeRequests)
		cr.GET("/:id", s.readChangeRequest)
		cr.PUT("/:id/stage", s.updateStage)
		cr.GET("/:id/revisions", s.listRevisions)
		cr.GET("/:id/revisions/:objectType/:objectID", s.readRevision)
		cr.PUT("/:id/revisions/:objectType/:objectID", s.saveRevision)
		cr.DELETE("/:id/revisions/:objectType/:objectID", s.deleteRevision)
		cr.POST("/:id/accept/:objectType/:objectID", s.accept)
	}

	co := r.Group("/concepts")
	{
		co.GET("", s.listConcepts)
		co.GET("/availability/:id", s.checkIDAvailable)
		co.GET("/:id", s.readConcept)
		co.GET("/:id/incoming-relations", s.incomingRelations)
	}

	cl := r.Group("/collections")
	{
		cl.GET("", s.listCollections)
		cl.GET("/:id", s.readCollection)
		cl.POST("/:id/items", s.addCollectionItems)
		cl.DELETE("/:id/items", s.removeCollectionItems)
	}

	rv := r.Group("/reviews")
	{
		rv.POST("", s.requestReview)
		rv.GET("", s.listReviews)
		rv.GET("/:id", s.readReview)
		rv.POST("/:id/complete", s.completeReview)
		rv.GET("/:id/material", s.reviewMaterial)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the working copy.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.working.Close()
}

// WorkingCopy exposes the underlying store, for watch wiring.
func (s *Server) WorkingCopy() *storage.WorkingCopy {
	return s.working
}
