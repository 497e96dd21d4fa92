// Request-ID and observability middleware for the command API
package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestID assigns every request a UUID unless the client sent one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// observe records request metrics and a structured access log line.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		s.metrics.HTTPRequestsInFlightInc()

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		command := c.FullPath()
		if command == "" {
			command = "unmatched"
		}

		s.metrics.HTTPRequestsInFlightDec()
		s.metrics.RecordHTTPRequest(command, strconv.Itoa(status), duration)
		if s.log != nil {
			s.log.LogHTTPRequest(c.Request.Method, command, status, duration)
		}
	}
}
