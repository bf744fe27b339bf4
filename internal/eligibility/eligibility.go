// Package eligibility 毕业资格计算核心：纯函数，无 I/O、无持久化状态。
//
// 进度 = 已完成课程数 + 已清算材料数，除以 课程总数 + 5 项必需材料。
// 资格 = 进度达到 100% 且 GPA >= 2.0。
package eligibility

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	// MilestoneCount 固定的毕业材料类别数
	MilestoneCount = 5
	// MinGPA 毕业所需最低 GPA（含）
	MinGPA = 2.0
	// MaxGrade 成绩上限
	MaxGrade = 4.0
)

var (
	ErrInvalidGrade = errors.New("成绩必须为 0.0 ~ 4.0 之间的整数档位")
)

// Record 参与计算的一条课程成绩
type Record struct {
	CourseCode string
	Grade      float64
}

// Policy 计算策略
type Policy struct {
	// CountFailingGradesAsCompleted 为 true 时 0 分课程也计入已完成课程
	CountFailingGradesAsCompleted bool
}

// Progress 一名学生的派生进度指标
type Progress struct {
	CompletedSubjects int     `json:"completed_subjects"`
	CurriculumSize    int     `json:"curriculum_size"`
	ClearedMilestones int     `json:"cleared_milestones"`
	TotalMilestones   int     `json:"total_milestones"`
	GPA               float64 `json:"gpa"`
	GPADisplay        string  `json:"gpa_display"`
	Percent           int     `json:"percent"`
	Eligible          bool    `json:"eligible"`
}

// CompletedSubjectCount 统计已完成课程数。默认只计 grade > 0 的记录。
func CompletedSubjectCount(records []Record, policy Policy) int {
	if policy.CountFailingGradesAsCompleted {
		return len(records)
	}
	n := 0
	for _, r := range records {
		if r.Grade > 0 {
			n++
		}
	}
	return n
}

// GPA 全部成绩的算术平均（不按学分加权），无记录时为 0。保留完整精度。
func GPA(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.Grade
	}
	return sum / float64(len(records))
}

// FormatGPA 两位小数展示
func FormatGPA(gpa float64) string {
	return strconv.FormatFloat(gpa, 'f', 2, 64)
}

// OverallPercent 计算总体进度百分比，结果在 [0, 100]。
//
// 已完成课程数不超过课程总数（孤立记录不会把进度推过课程部分），
// 课程总数为 0 时课程部分贡献为 0。
func OverallPercent(completedSubjects, curriculumSize, clearedMilestones int) int {
	if curriculumSize < 0 {
		curriculumSize = 0
	}
	completedSubjects = clampInt(completedSubjects, 0, curriculumSize)
	clearedMilestones = clampInt(clearedMilestones, 0, MilestoneCount)

	total := curriculumSize + MilestoneCount
	done := completedSubjects + clearedMilestones

	pct := int(math.Round(100 * float64(done) / float64(total)))
	return clampInt(pct, 0, 100)
}

// IsEligible 进度 100% 且 GPA 达标才具备毕业资格
func IsEligible(percent int, gpa float64) bool {
	return percent >= 100 && gpa >= MinGPA
}

// ComputeProgress 由课程总数、成绩记录与材料状态计算完整进度
func ComputeProgress(curriculumSize int, records []Record, milestones []Milestone, policy Policy) Progress {
	completed := CompletedSubjectCount(records, policy)
	cleared := ClearedMilestoneCount(milestones)
	gpa := GPA(records)
	pct := OverallPercent(completed, curriculumSize, cleared)

	return Progress{
		CompletedSubjects: completed,
		CurriculumSize:    curriculumSize,
		ClearedMilestones: cleared,
		TotalMilestones:   MilestoneCount,
		GPA:               gpa,
		GPADisplay:        FormatGPA(gpa),
		Percent:           pct,
		Eligible:          IsEligible(pct, gpa),
	}
}

// ValidateGrade 成绩只允许 0/1/2/3/4 五档
func ValidateGrade(grade float64) error {
	if math.IsNaN(grade) || grade < 0 || grade > MaxGrade {
		return ErrInvalidGrade
	}
	if grade != math.Trunc(grade) {
		return ErrInvalidGrade
	}
	return nil
}

// NormalizeCourseCode 课程代码统一为大写，并压缩多余空白（"bit  1101 " → "BIT 1101"）
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), " "))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
