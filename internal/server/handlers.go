// HTTP handlers mapping API commands onto the domain managers
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/glossarium/termstore/pkg/changerequest"
	"github.com/glossarium/termstore/pkg/concept"
	"github.com/glossarium/termstore/pkg/merge"
	"github.com/glossarium/termstore/pkg/review"
	"github.com/glossarium/termstore/pkg/revision"
	"github.com/glossarium/termstore/pkg/storage"
)

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, changerequest.ErrRevisionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, merge.ErrNeedsRebase),
		errors.Is(err, merge.ErrNotInReview),
		errors.Is(err, merge.ErrIDTaken),
		errors.Is(err, changerequest.ErrSubmitted),
		errors.Is(err, changerequest.ErrResolved):
		status = http.StatusConflict
	case errors.Is(err, merge.ErrMissingObjectID),
		errors.Is(err, merge.ErrUnsupportedType),
		errors.Is(err, changerequest.ErrUnknownStage),
		errors.Is(err, concept.ErrUnknownSource):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func boolParam(c *gin.Context, name string) *bool {
	switch c.Query(name) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

// ========== Change request operations ==========

func (s *Server) initializeDraft(c *gin.Context) {
	var req struct {
		Author revision.Author `json:"author"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "author is required"})
		return
	}

	cr, err := s.changeRequests.InitializeDraft(req.Author)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cr)
}

func (s *Server) listChangeRequests(c *gin.Context) {
	lq := &changerequest.ListQuery{
		Submitted:    boolParam(c, "submitted"),
		Resolved:     boolParam(c, "resolved"),
		CreatorEmail: c.Query("creator"),
	}
	if ids := c.Query("ids"); ids != "" {
		lq.OnlyIDs = strings.Split(ids, ",")
	}

	if c.Query("full") == "true" {
		index, err := s.changeRequests.ReadAllFiltered(lq)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changeRequests": index})
		return
	}

	ids, err := s.changeRequests.List(lq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (s *Server) readChangeRequest(c *gin.Context) {
	cr, err := s.changeRequests.Read(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cr)
}

func (s *Server) updateStage(c *gin.Context) {
	var req struct {
		Stage changerequest.Stage `json:"stage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stage is required"})
		return
	}

	if err := s.changeRequests.UpdateStage(c.Param("id"), req.Stage); err != nil {
		writeError(c, err)
		return
	}
	s.metrics.RecordStageTransition(string(req.Stage))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) saveRevision(c *gin.Context) {
	var req struct {
		Object           json.RawMessage `json:"object"`
		ParentRevisionID string          `json:"parentRevisionID"`
		Author           revision.Author `json:"author"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Object) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "object is required"})
		return
	}

	crID := c.Param("id")
	if crID == "new" {
		// A fresh draft is created implicitly.
		crID = ""
	}
	crID, err := s.changeRequests.SaveRevision(crID,
		c.Param("objectType"), c.Param("objectID"),
		req.Object, req.ParentRevisionID, req.Author)
	if err != nil {
		writeError(c, err)
		return
	}
	s.metrics.RecordRevisionSaved()
	c.JSON(http.StatusOK, gin.H{"changeRequestID": crID})
}

func (s *Server) deleteRevision(c *gin.Context) {
	err := s.changeRequests.DeleteRevision(c.Param("id"),
		c.Param("objectType"), c.Param("objectID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listRevisions(c *gin.Context) {
	revisions, err := s.changeRequests.ListRevisions(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revisions": revisions})
}

func (s *Server) readRevision(c *gin.Context) {
	staged, err := s.changeRequests.ReadRevision(c.Param("id"),
		c.Param("objectType"), c.Param("objectID"))
	if err != nil {
		writeError(c, err)
		return
	}
	// Absent revisions read as null.
	c.JSON(http.StatusOK, staged)
}

func (s *Server) accept(c *gin.Context) {
	var req struct {
		NewObjectID int `json:"newObjectID"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
	}

	res, err := s.workflow.Accept(c.Param("id"),
		c.Param("objectType"), c.Param("objectID"), req.NewObjectID)
	if err != nil && res == nil {
		s.metrics.RecordAcceptance(errors.Is(err, merge.ErrNeedsRebase))
		writeError(c, err)
		return
	}
	s.metrics.RecordAcceptance(false)
	if err != nil {
		// The merge landed; the bookkeeping failure rides along.
		c.JSON(http.StatusOK, gin.H{
			"objectID":   res.ObjectID,
			"revisionID": res.RevisionID,
			"warning":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ========== Concept operations ==========

func conceptQuery(c *gin.Context) *concept.Query {
	q := &concept.Query{MatchingText: c.Query("text")}
	switch source := c.Query("source"); {
	case source == "" || source == concept.CatalogAll:
		q.InSource = &concept.Source{
			Type:       concept.SourceCatalogPreset,
			PresetName: concept.CatalogAll,
		}
	case strings.HasPrefix(source, "collection:"):
		q.InSource = &concept.Source{
			Type:         concept.SourceCollection,
			CollectionID: strings.TrimPrefix(source, "collection:"),
		}
	default:
		q.InSource = &concept.Source{Type: source}
	}
	return q
}

func (s *Server) listConcepts(c *gin.Context) {
	q := conceptQuery(c)

	if c.Query("full") == "true" {
		index, err := s.concepts.ReadAll(q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"concepts": index})
		return
	}

	// Free-text matching needs loaded objects; plain source scoping
	// stays on the cheap ID path.
	if q.MatchingText != "" {
		index, err := s.concepts.ReadAll(q)
		if err != nil {
			writeError(c, err)
			return
		}
		ids := make([]int, 0, len(index))
		for id := range index {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		c.JSON(http.StatusOK, gin.H{"ids": ids})
		return
	}

	ids, err := s.concepts.ListIDs(q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (s *Server) readConcept(c *gin.Context) {
	termID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "termid must be numeric"})
		return
	}

	obj, err := s.concepts.Read(termID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, obj)
}

func (s *Server) incomingRelations(c *gin.Context) {
	termID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "termid must be numeric"})
		return
	}

	relations, err := s.concepts.FindIncomingRelations(termID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relations": relations})
}

func (s *Server) checkIDAvailable(c *gin.Context) {
	termID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "termid must be numeric"})
		return
	}

	available, err := s.workflow.CheckIDAvailable(termID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"termid": termID, "available": available})
}

// ========== Collection operations ==========

func (s *Server) listCollections(c *gin.Context) {
	index, err := s.collections.ReadAll()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": index})
}

func (s *Server) readCollection(c *gin.Context) {
	coll, err := s.collections.Read(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, coll)
}

func (s *Server) addCollectionItems(c *gin.Context) {
	var req struct {
		Items []int `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items are required"})
		return
	}

	if err := s.collections.AddItems(c.Param("id"), req.Items...); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) removeCollectionItems(c *gin.Context) {
	var req struct {
		Items []int `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items are required"})
		return
	}

	if err := s.collections.RemoveItems(c.Param("id"), req.Items...); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ========== Review operations ==========

func (s *Server) requestReview(c *gin.Context) {
	var req struct {
		ObjectType string `json:"objectType"`
		ObjectID   string `json:"objectID"`
		RevisionID string `json:"revisionID"`
	}
	if err := c.ShouldBindJSON(&req); err != nil ||
		req.ObjectType == "" || req.ObjectID == "" || req.RevisionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "objectType, objectID and revisionID are required"})
		return
	}

	r, err := s.reviews.Request(req.ObjectType, req.ObjectID, req.RevisionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) listReviews(c *gin.Context) {
	lq := &review.ListQuery{
		Completed:  boolParam(c, "completed"),
		ObjectType: c.Query("objectType"),
	}
	if ids := c.Query("objectIDs"); ids != "" {
		lq.ObjectIDs = strings.Split(ids, ",")
	}
	if ids := c.Query("ids"); ids != "" {
		lq.OnlyIDs = strings.Split(ids, ",")
	}

	if c.Query("full") == "true" {
		index, err := s.reviews.ReadAllFiltered(lq)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"reviews": index})
		return
	}

	ids, err := s.reviews.List(lq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (s *Server) readReview(c *gin.Context) {
	r, err := s.reviews.Read(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) completeReview(c *gin.Context) {
	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Approved == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approved is required"})
		return
	}

	if err := s.reviews.Complete(c.Param("id"), *req.Approved); err != nil {
		writeError(c, err)
		return
	}
	s.metrics.RecordReviewCompleted(*req.Approved)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) reviewMaterial(c *gin.Context) {
	object, revisionID, err := s.workflow.ReviewMaterial(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revisionID": revisionID, "object": object})
}
