package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skilllink/skilllink/internal/chat"
)

func (s *Server) listChatRooms(c *gin.Context) {
	rooms, err := s.svc.Chats.Rooms(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) openChatRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	room, messages, err := s.svc.Chats.OpenRoom(c.Request.Context(), currentUserID(c), roomID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "messages": messages})
}

func (s *Server) sendChatMessage(c *gin.Context) {
	roomID := c.Param("roomId")
	var req chat.SendRequest
	if !s.bindJSON(c, &req) {
		return
	}
	msg, err := s.svc.Chats.Send(c.Request.Context(), currentUserID(c), roomID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
