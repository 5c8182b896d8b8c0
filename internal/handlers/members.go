package handlers

import (
	"net/http"
	"strconv"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MemberHandler struct {
	db            *gorm.DB
	memberService services.MemberService
	logger        *zap.Logger
}

func NewMemberHandler(db *gorm.DB, memberService services.MemberService, logger *zap.Logger) *MemberHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberHandler{db: db, memberService: memberService, logger: logger}
}

func (h *MemberHandler) dbFor(c *gin.Context) *gorm.DB {
	if h.db == nil {
		return nil
	}
	return h.db.WithContext(c.Request.Context())
}

func (h *MemberHandler) AddMember(c *gin.Context) {
	var input services.MemberInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	member, err := h.memberService.AddMember(h.dbFor(c), input)
	if err != nil {
		respondError(c, h.logger, "member", err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *MemberHandler) ListMembers(c *gin.Context) {
	members, err := h.memberService.ListMembers(h.dbFor(c))
	if err != nil {
		respondError(c, h.logger, "member", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "total": len(members)})
}

func (h *MemberHandler) GetMember(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		badRequest(c, "invalid member id", nil)
		return
	}

	member, err := h.memberService.GetMember(h.dbFor(c), uint(id))
	if err != nil {
		respondError(c, h.logger, "member", err)
		return
	}
	c.JSON(http.StatusOK, member)
}
