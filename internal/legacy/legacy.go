// Package legacy 将旧版浏览器本地存储（degreefi_data_v1/v2）导出的 JSON 升级为当前结构。
//
// 旧数据的 requirements 字段在不同版本间形状不同：
//
//	v1: {"total": 40, "completed": 3, ...}
//	v2: {"subjects": {"current": 3, "max": 59}, "manualClearance": {"Transcript": true}}
//
// Detect 判断版本，Upgrade 统一转换为 Snapshot，之后的写库逻辑只面对 Snapshot。
package legacy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"regexp"
	"strings"
	"time"

	"degreefi/backend/internal/eligibility"
)

// 支持的源数据版本
const (
	Version1 = 1
	Version2 = 2
)

var (
	ErrMalformed = errors.New("旧数据格式无法解析")
	ErrNoUsers   = errors.New("旧数据中没有用户")
)

// ── 源数据结构 ──

type document struct {
	Users  []rawUser  `json:"users"`
	Config *rawConfig `json:"config"`
}

type rawConfig struct {
	AvailableCourses []string `json:"availableCourses"`
}

type rawUser struct {
	Email         string            `json:"email"`
	Password      string            `json:"password"`
	Role          string            `json:"role"`
	Name          string            `json:"name"`
	RegNumber     string            `json:"regNumber"`
	Phone         string            `json:"phone"`
	Courses       []rawCourse       `json:"courses"`
	Files         []rawFile         `json:"files"`
	Requirements  json.RawMessage   `json:"requirements"`
	Notifications []rawNotification `json:"notifications"`
}

type rawCourse struct {
	Name  string  `json:"name"`
	Grade float64 `json:"grade"`
	Date  string  `json:"date"`
}

type rawFile struct {
	Category   string `json:"category"`
	Name       string `json:"name"`
	Data       string `json:"data"`
	UploadDate string `json:"uploadDate"`
	Status     string `json:"status"`
}

type rawNotification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Date    string `json:"date"`
	Read    bool   `json:"read"`
}

// v1 / v2 requirements 的并集
type rawRequirements struct {
	Total           *int            `json:"total"`
	Subjects        *rawSubjects    `json:"subjects"`
	ManualClearance map[string]bool `json:"manualClearance"`
}

type rawSubjects struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// ── 升级结果 ──

// Snapshot 升级后的统一数据
type Snapshot struct {
	SourceVersion int
	Curriculum    []Course
	Users         []User
}

// Course 课程表条目
type Course struct {
	Code string
	Name string
}

// User 旧系统中的一个账号
type User struct {
	Email           string
	Password        string // 旧系统明文保存，导入时需哈希
	Role            string
	Name            string
	RegNumber       string
	Phone           string
	Records         []Record
	Documents       []Document
	ManualClearance map[eligibility.Category]bool
	Notifications   []Notification
}

// Record 成绩记录
type Record struct {
	CourseCode string
	CourseName string
	Grade      float64
	DateAdded  time.Time
}

// Document 上传的材料；Content 为 data URL 解码后的字节，可能为空
type Document struct {
	Category   eligibility.Category
	Filename   string
	Status     eligibility.Status
	UploadDate time.Time
	Content    []byte
}

// Notification 站内通知
type Notification struct {
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// Detect 判断源数据版本：任一学生仍是 v1 形状即视为 v1
func Detect(raw []byte) (int, error) {
	doc, err := decode(raw)
	if err != nil {
		return 0, err
	}
	return detect(doc), nil
}

func detect(doc *document) int {
	for _, u := range doc.Users {
		if u.Role == "admin" {
			continue
		}
		req := parseRequirements(u.Requirements)
		if req == nil || req.Total != nil || req.ManualClearance == nil {
			return Version1
		}
	}
	return Version2
}

func decode(raw []byte) (*document, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(doc.Users) == 0 {
		return nil, ErrNoUsers
	}
	return &doc, nil
}

func parseRequirements(raw json.RawMessage) *rawRequirements {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var req rawRequirements
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	return &req
}

// Upgrade 将任意版本的旧数据转换为 Snapshot
//
// now 用于无法解析日期的字段。
func Upgrade(raw []byte, now time.Time) (*Snapshot, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{SourceVersion: detect(doc)}

	var available []string
	if doc.Config != nil {
		available = doc.Config.AvailableCourses
	}
	catalog := make(map[string]Course, len(available))
	seen := make(map[string]bool, len(available))
	for _, entry := range available {
		c, ok := ParseCourseEntry(entry)
		if !ok || seen[c.Code] {
			continue
		}
		seen[c.Code] = true
		snap.Curriculum = append(snap.Curriculum, c)
		catalog[strings.ToUpper(c.Code+" "+c.Name)] = c
	}

	for _, ru := range doc.Users {
		snap.Users = append(snap.Users, upgradeUser(ru, catalog, now))
	}
	return snap, nil
}

func upgradeUser(ru rawUser, catalog map[string]Course, now time.Time) User {
	u := User{
		Email:           strings.ToLower(strings.TrimSpace(ru.Email)),
		Password:        ru.Password,
		Role:            ru.Role,
		Name:            strings.TrimSpace(ru.Name),
		RegNumber:       strings.ToUpper(strings.TrimSpace(ru.RegNumber)),
		Phone:           strings.TrimSpace(ru.Phone),
		ManualClearance: map[eligibility.Category]bool{},
	}
	if u.Role != "admin" {
		u.Role = "student"
	}

	// 同一课程重复录入时保留最后一次
	idx := map[string]int{}
	for _, rc := range ru.Courses {
		rec, ok := upgradeCourse(rc, catalog, now)
		if !ok {
			continue
		}
		if i, dup := idx[rec.CourseCode]; dup {
			u.Records[i] = rec
			continue
		}
		idx[rec.CourseCode] = len(u.Records)
		u.Records = append(u.Records, rec)
	}

	docIdx := map[eligibility.Category]int{}
	for _, rf := range ru.Files {
		d, ok := upgradeFile(rf, now)
		if !ok {
			continue
		}
		if i, dup := docIdx[d.Category]; dup {
			u.Documents[i] = d
			continue
		}
		docIdx[d.Category] = len(u.Documents)
		u.Documents = append(u.Documents, d)
	}

	// v1 没有 manualClearance，升级后视为全部关闭
	if req := parseRequirements(ru.Requirements); req != nil {
		for k, v := range req.ManualClearance {
			cat, err := eligibility.ParseCategory(k)
			if err != nil || !v {
				continue
			}
			u.ManualClearance[cat] = true
		}
	}

	for _, rn := range ru.Notifications {
		u.Notifications = append(u.Notifications, Notification{
			Title:     rn.Title,
			Message:   rn.Message,
			Read:      rn.Read,
			CreatedAt: parseDate(rn.Date, now),
		})
	}
	return u
}

func upgradeCourse(rc rawCourse, catalog map[string]Course, now time.Time) (Record, bool) {
	full := strings.ToUpper(strings.Join(strings.Fields(rc.Name), " "))
	if full == "" {
		return Record{}, false
	}

	var code, name string
	if c, ok := catalog[full]; ok {
		code, name = c.Code, c.Name
	} else if c, ok := ParseCourseEntry(full); ok {
		code, name = c.Code, c.Name
	} else {
		// 无法拆出课程代码：整串作为代码，保留为孤立记录
		code, name = full, full
	}

	return Record{
		CourseCode: code,
		CourseName: name,
		Grade:      ClampGrade(rc.Grade),
		DateAdded:  parseDate(rc.Date, now),
	}, true
}

func upgradeFile(rf rawFile, now time.Time) (Document, bool) {
	cat, err := eligibility.ParseCategory(rf.Category)
	if err != nil {
		return Document{}, false
	}

	status := eligibility.StatusPending
	switch strings.ToLower(rf.Status) {
	case "cleared", "verified":
		status = eligibility.StatusVerified
	}

	content, ext := decodeDataURL(rf.Data)
	name := rf.Name
	if name == "" {
		name = string(cat) + ext
	}

	return Document{
		Category:   cat,
		Filename:   name,
		Status:     status,
		UploadDate: parseDate(rf.UploadDate, now),
		Content:    content,
	}, true
}

var courseEntryRe = regexp.MustCompile(`^([A-Za-z]+\s*\d+[A-Za-z]?)\s+(.+)$`)

// ParseCourseEntry 解析 "BIT 1101 Computer Architecture" 形式的课程条目
func ParseCourseEntry(entry string) (Course, bool) {
	entry = strings.Join(strings.Fields(entry), " ")
	m := courseEntryRe.FindStringSubmatch(entry)
	if m == nil {
		return Course{}, false
	}
	return Course{
		Code: eligibility.NormalizeCourseCode(m[1]),
		Name: strings.TrimSpace(m[2]),
	}, true
}

// ClampGrade 旧数据允许连续值，超出 [0,4] 的部分截断
func ClampGrade(g float64) float64 {
	if math.IsNaN(g) || g < 0 {
		return 0
	}
	if g > eligibility.MaxGrade {
		return eligibility.MaxGrade
	}
	return g
}

// 旧前端使用 toLocaleDateString()，常见为 en-US 或 en-GB 格式
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"1/2/2006",
	"02/01/2006",
	"2.1.2006",
}

func parseDate(s string, fallback time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// decodeDataURL 解析 data:<mime>;base64,<payload>，返回内容与推断的扩展名
func decodeDataURL(s string) ([]byte, string) {
	if !strings.HasPrefix(s, "data:") {
		return nil, ""
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ""
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ""
	}

	ext := ""
	if exts, err := mime.ExtensionsByType(strings.TrimSuffix(meta, ";base64")); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return data, ext
}
