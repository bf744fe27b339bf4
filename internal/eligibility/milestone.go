package eligibility

import (
	"errors"
	"strings"
)

// Category 毕业材料类别（固定 5 项）
type Category string

const (
	CategoryFinancialClearance Category = "Financial Clearance"
	CategoryLibraryClearance   Category = "Library Clearance"
	CategoryTranscript         Category = "Transcript"
	CategoryAcademicInternship Category = "Academic Internship"
	CategoryProjectDefense     Category = "Project Defense"
)

// Status 材料状态
type Status string

const (
	StatusMissing  Status = "missing"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
)

var (
	ErrUnknownCategory   = errors.New("未知的材料类别")
	ErrUnknownStatus     = errors.New("未知的材料状态")
	ErrInvalidTransition = errors.New("不允许的材料状态流转")
)

// 展示顺序
var categories = []Category{
	CategoryFinancialClearance,
	CategoryLibraryClearance,
	CategoryTranscript,
	CategoryAcademicInternship,
	CategoryProjectDefense,
}

// Categories 返回全部类别（副本，按展示顺序）
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory 不区分大小写地解析类别名
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

// ParseStatus 解析状态字符串
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusMissing, StatusPending, StatusVerified:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// Milestone 某一类别材料的状态快照
type Milestone struct {
	Category        Category
	Status          Status
	ManualClearance bool
}

// EffectiveStatus 人工放行会遮蔽上传状态
func (m Milestone) EffectiveStatus() Status {
	if m.ManualClearance {
		return StatusVerified
	}
	return m.Status
}

// Cleared 是否计入已清算材料
func (m Milestone) Cleared() bool {
	return m.EffectiveStatus() == StatusVerified
}

// ClearedMilestoneCount 统计已清算的固定类别数；未知类别与重复类别不计。
func ClearedMilestoneCount(milestones []Milestone) int {
	seen := make(map[Category]bool, MilestoneCount)
	for _, m := range milestones {
		c, err := ParseCategory(string(m.Category))
		if err != nil {
			continue
		}
		if m.Cleared() {
			seen[c] = true
		}
	}
	return len(seen)
}

// CanTransition 允许的流转：
//
//	missing  → pending   （学生上传）
//	pending  → verified  （管理员审核通过）
//	missing  → verified  （管理员直接放行）
//
// 同状态视为无操作，返回 true。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusMissing:
		return to == StatusPending || to == StatusVerified
	case StatusPending:
		return to == StatusVerified
	}
	return false
}

// Transition 校验并返回目标状态
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// CanWithdraw 仅待审核材料可以由学生撤回
func CanWithdraw(status Status) bool {
	return status == StatusPending
}
