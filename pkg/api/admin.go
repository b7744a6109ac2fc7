package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trempist/trempist/pkg/store"
)

// prefixFromQuery resolves the namespace an admin operation targets. Defaults
// to the live namespace; "?prefix=test_" selects the sandbox.
func prefixFromQuery(c *gin.Context) (store.Prefix, bool) {
	prefix, err := store.ParsePrefix(c.Query("prefix"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return prefix, true
}

func (s *Server) handleAdminDeleteUser(c *gin.Context) {
	prefix, ok := prefixFromQuery(c)
	if !ok {
		return
	}
	if err := s.store.DeleteUser(c.Request.Context(), prefix, c.Param("phone")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminResetUser(c *gin.Context) {
	prefix, ok := prefixFromQuery(c)
	if !ok {
		return
	}
	if err := store.RemoveAllRecords(c.Request.Context(), s.store, prefix, c.Param("phone")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type changePhoneRequest struct {
	NewPhone string `json:"new_phone" binding:"required"`
}

func (s *Server) handleAdminChangePhone(c *gin.Context) {
	prefix, ok := prefixFromQuery(c)
	if !ok {
		return
	}
	var req changePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.ChangePhone(c.Request.Context(), prefix, c.Param("phone"), req.NewPhone); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminListRides(c *gin.Context) {
	prefix, ok := prefixFromQuery(c)
	if !ok {
		return
	}
	lists, err := store.ListRecords(c.Request.Context(), s.store, prefix, c.Param("phone"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"driver_rides":        lists.DriverRides,
		"hitchhiker_requests": lists.HitchhikerRequests,
	})
}
