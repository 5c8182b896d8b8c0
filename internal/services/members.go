package services

import (
	"fmt"
	"strings"

	"taskify/backend/internal/models"

	"gorm.io/gorm"
)

// MemberService backs the user directory.
type MemberService interface {
	AddMember(db *gorm.DB, input MemberInput) (models.Member, error)
	ListMembers(db *gorm.DB) ([]models.Member, error)
	GetMember(db *gorm.DB, id uint) (models.Member, error)
}

type MemberServiceImpl struct{}

func NewMemberService() *MemberServiceImpl {
	return &MemberServiceImpl{}
}

func (s *MemberServiceImpl) AddMember(db *gorm.DB, input MemberInput) (models.Member, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if err := ValidateMemberInput(input); err != nil {
		return models.Member{}, err
	}

	member := models.Member{Name: input.Name, Email: input.Email, Age: input.Age}
	if err := db.Create(&member).Error; err != nil {
		return models.Member{}, fmt.Errorf("add member: %w", err)
	}
	return member, nil
}

func (s *MemberServiceImpl) ListMembers(db *gorm.DB) ([]models.Member, error) {
	members := []models.Member{}
	if err := db.Order("id ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *MemberServiceImpl) GetMember(db *gorm.DB, id uint) (models.Member, error) {
	var member models.Member
	if err := db.First(&member, id).Error; err != nil {
		return models.Member{}, fmt.Errorf("get member %d: %w", id, err)
	}
	return member, nil
}
