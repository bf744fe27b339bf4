package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	pkgerrors "degreefi/backend/pkg/errors"
	"degreefi/backend/pkg/mailer"
)

// ── 测试用仓储集合 ──

type testRepos struct {
	repo         *repository.Repository
	users        *mockUserRepo
	courses      *mockCourseRepo
	records      *mockRecordRepo
	milestones   *mockMilestoneRepo
	notifs       *mockNotificationRepo
	sysCfg       *mockSystemConfigRepo
	legacyImport *mockLegacyImportRepo
}

func newTestRepos() *testRepos {
	records := newMockRecordRepo()
	r := &testRepos{
		users:        newMockUserRepo(),
		courses:      newMockCourseRepo(records),
		records:      records,
		milestones:   newMockMilestoneRepo(),
		notifs:       newMockNotificationRepo(),
		sysCfg:       newMockSystemConfigRepo(),
		legacyImport: &mockLegacyImportRepo{},
	}
	r.repo = &repository.Repository{
		User:         r.users,
		Course:       r.courses,
		Record:       r.records,
		Milestone:    r.milestones,
		Notification: r.notifs,
		SystemConfig: r.sysCfg,
		LegacyImport: r.legacyImport,
	}
	return r
}

// addStudent 直接写入一名带 5 项空材料的学生
func (r *testRepos) addStudent(id, name string) *model.User {
	reg := "BIT/" + strings.ToUpper(id)
	u := &model.User{
		UserID:    id,
		Name:      name,
		Email:     strings.ToLower(id) + "@students.edu",
		RegNumber: &reg,
		Role:      model.RoleStudent,
	}
	u.Version = 1
	_ = r.users.Create(context.Background(), u)
	_ = r.milestones.CreateBatch(context.Background(), newMilestoneSet(id))
	return u
}

// addCourses 写入 n 门课程 C001..Cn
func (r *testRepos) addCourses(n int) {
	for i := 1; i <= n; i++ {
		_ = r.courses.Create(context.Background(), &model.Course{
			Code: fmt.Sprintf("C%03d", i),
			Name: fmt.Sprintf("Course %d", i),
		})
	}
}

// ── Mock UserRepository ──

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	order []string
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%d", m.seq)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	cp := *user
	m.users[user.UserID] = &cp
	m.order = append(m.order, user.UserID)
	return nil
}

func (m *mockUserRepo) find(pred func(u *model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if u, ok := m.users[id]; ok && pred(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.UserID == id })
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return m.find(func(u *model.User) bool { return strings.ToLower(u.Email) == email })
}

func (m *mockUserRepo) GetByRegNumber(_ context.Context, regNumber string) (*model.User, error) {
	regNumber = strings.ToUpper(strings.TrimSpace(regNumber))
	return m.find(func(u *model.User) bool {
		return u.RegNumber != nil && strings.ToUpper(*u.RegNumber) == regNumber
	})
}

func (m *mockUserRepo) GetStudentByName(_ context.Context, name string) (*model.User, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	return m.find(func(u *model.User) bool {
		return u.Role == model.RoleStudent && strings.ToLower(u.Name) == name
	})
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[user.UserID]
	if !ok || cur.Version != user.Version {
		return pkgerrors.ErrOptimisticLock
	}
	user.Version++
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) ListStudents(_ context.Context, filter repository.StudentFilter, offset, limit int) ([]model.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kw := strings.ToLower(filter.Keyword)
	var all []model.User
	for _, id := range m.order {
		u, ok := m.users[id]
		if !ok || u.Role != model.RoleStudent {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(u.Name), kw) && !strings.Contains(strings.ToLower(u.Email), kw) {
			continue
		}
		all = append(all, *u)
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockUserRepo) ListStudentsByIDs(_ context.Context, ids []string) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok && u.Role == model.RoleStudent {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockUserRepo) ListStudentIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, id := range m.order {
		if u, ok := m.users[id]; ok && u.Role == model.RoleStudent {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ── Mock CourseRepository ──

type mockCourseRepo struct {
	mu      sync.Mutex
	courses []*model.Course
	seq     int64
	records *mockRecordRepo
}

func newMockCourseRepo(records *mockRecordRepo) *mockCourseRepo {
	return &mockCourseRepo{records: records}
}

func (m *mockCourseRepo) Create(_ context.Context, course *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.Code == course.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	m.seq++
	if course.CourseID == "" {
		course.CourseID = fmt.Sprintf("course-%d", m.seq)
	}
	course.Seq = m.seq
	cp := *course
	m.courses = append(m.courses, &cp)
	return nil
}

func (m *mockCourseRepo) GetByID(_ context.Context, id string) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.CourseID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCourseRepo) GetByCode(_ context.Context, code string) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.courses {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCourseRepo) List(_ context.Context) ([]model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCourseRepo) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.courses)), nil
}

func (m *mockCourseRepo) ListNotRecordedBy(ctx context.Context, studentID string) ([]model.Course, error) {
	recs, _ := m.records.ListByStudent(ctx, studentID)
	have := make(map[string]bool, len(recs))
	for _, r := range recs {
		have[r.CourseCode] = true
	}
	all, _ := m.List(ctx)
	var out []model.Course
	for _, c := range all {
		if !have[c.Code] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCourseRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.courses {
		if c.CourseID == id {
			m.courses = append(m.courses[:i], m.courses[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock AcademicRecordRepository ──

type mockRecordRepo struct {
	mu      sync.Mutex
	records []*model.AcademicRecord
	seq     int
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{}
}

func (m *mockRecordRepo) Upsert(_ context.Context, record *model.AcademicRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.StudentID == record.StudentID && r.CourseCode == record.CourseCode {
			r.Grade = record.Grade
			r.CourseName = record.CourseName
			r.DateAdded = record.DateAdded
			record.RecordID = r.RecordID
			return true, nil
		}
	}
	m.seq++
	if record.RecordID == "" {
		record.RecordID = fmt.Sprintf("rec-%d", m.seq)
	}
	cp := *record
	m.records = append(m.records, &cp)
	return false, nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id string) (*model.AcademicRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.RecordID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecordRepo) GetByStudentAndCode(_ context.Context, studentID, code string) (*model.AcademicRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.StudentID == studentID && r.CourseCode == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRecordRepo) ListByStudent(_ context.Context, studentID string) ([]model.AcademicRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AcademicRecord
	for _, r := range m.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) ListByStudents(_ context.Context, studentIDs []string) ([]model.AcademicRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = true
	}
	var out []model.AcademicRecord
	for _, r := range m.records {
		if want[r.StudentID] {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) Delete(_ context.Context, studentID, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.RecordID == recordID && r.StudentID == studentID {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock MilestoneRepository ──

type mockMilestoneRepo struct {
	mu         sync.Mutex
	milestones map[string]*model.Milestone // key: studentID|category
}

func newMockMilestoneRepo() *mockMilestoneRepo {
	return &mockMilestoneRepo{milestones: make(map[string]*model.Milestone)}
}

func milestoneKey(studentID, category string) string {
	return studentID + "|" + category
}

func (m *mockMilestoneRepo) CreateBatch(_ context.Context, milestones []model.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range milestones {
		ms := milestones[i]
		if ms.MilestoneID == "" {
			ms.MilestoneID = "ms-" + milestoneKey(ms.StudentID, ms.Category)
		}
		if ms.Version == 0 {
			ms.Version = 1
		}
		m.milestones[milestoneKey(ms.StudentID, ms.Category)] = &ms
	}
	return nil
}

func (m *mockMilestoneRepo) Get(_ context.Context, studentID, category string) (*model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.milestones[milestoneKey(studentID, category)]; ok {
		cp := *ms
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMilestoneRepo) ListByStudent(_ context.Context, studentID string) ([]model.Milestone, error) {
	return m.ListByStudents(context.Background(), []string{studentID})
}

func (m *mockMilestoneRepo) ListByStudents(_ context.Context, studentIDs []string) ([]model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		want[id] = true
	}
	var out []model.Milestone
	for _, ms := range m.milestones {
		if want[ms.StudentID] {
			out = append(out, *ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *mockMilestoneRepo) MarkPending(_ context.Context, ms *model.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.milestones[milestoneKey(ms.StudentID, ms.Category)]
	if !ok || cur.Status != "missing" || cur.ManualClearance {
		return pkgerrors.ErrConditionNotMet
	}
	cur.Status = "pending"
	cur.FilePath = ms.FilePath
	cur.OriginalFilename = ms.OriginalFilename
	cur.UploadDate = ms.UploadDate
	cur.Version++
	ms.Status = "pending"
	return nil
}

func (m *mockMilestoneRepo) Update(_ context.Context, ms *model.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := milestoneKey(ms.StudentID, ms.Category)
	cur, ok := m.milestones[key]
	if !ok || cur.Version != ms.Version {
		return pkgerrors.ErrOptimisticLock
	}
	ms.Version++
	cp := *ms
	m.milestones[key] = &cp
	return nil
}

// set 测试中直接改写材料状态
func (m *mockMilestoneRepo) set(studentID, category, status string, manual bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.milestones[milestoneKey(studentID, category)]
	ms.Status = status
	ms.ManualClearance = manual
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	mu      sync.Mutex
	list    []*model.Notification
	seq     int64
	failFor map[string]error // 指定用户写入失败
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{failFor: make(map[string]error)}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[n.UserID]; ok {
		return err
	}
	m.seq++
	n.NotificationID = fmt.Sprintf("notif-%d", m.seq)
	n.Seq = m.seq
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	m.list = append(m.list, &cp)
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.list {
		if n.NotificationID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Notification
	for i := len(m.list) - 1; i >= 0; i-- {
		if m.list[i].UserID == userID {
			all = append(all, *m.list[i])
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, x := range m.list {
		if x.UserID == userID && !x.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.list {
		if x.NotificationID == id && x.UserID == userID {
			x.IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, x := range m.list {
		if x.UserID == userID && !x.IsRead {
			x.IsRead = true
			n++
		}
	}
	return n, nil
}

// forUser 按写入顺序返回某用户的通知
func (m *mockNotificationRepo) forUser(userID string) []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, x := range m.list {
		if x.UserID == userID {
			out = append(out, *x)
		}
	}
	return out
}

// ── Mock SystemConfigRepository ──

type mockSystemConfigRepo struct {
	mu  sync.Mutex
	cfg *model.SystemConfig
}

func newMockSystemConfigRepo() *mockSystemConfigRepo {
	return &mockSystemConfigRepo{cfg: defaultSystemConfig()}
}

func (m *mockSystemConfigRepo) Get(_ context.Context) (*model.SystemConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.cfg
	return &cp, nil
}

func (m *mockSystemConfigRepo) Update(_ context.Context, cfg *model.SystemConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.cfg = &cp
	return nil
}

// ── Mock LegacyImportRepository ──

type mockLegacyImportRepo struct {
	list []model.LegacyImport
}

func (m *mockLegacyImportRepo) Create(_ context.Context, imp *model.LegacyImport) error {
	imp.ImportID = fmt.Sprintf("import-%d", len(m.list)+1)
	m.list = append(m.list, *imp)
	return nil
}

func (m *mockLegacyImportRepo) List(_ context.Context) ([]model.LegacyImport, error) {
	return m.list, nil
}

// ── Mock Storage ──

type mockStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	seq     int
	saveErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(r io.Reader, originalName, subDir string) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rel := fmt.Sprintf("%s/file-%d-%s", subDir, m.seq, originalName)
	m.files[rel] = data
	return rel, nil
}

func (m *mockStorage) Delete(relPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, relPath)
	return nil
}

func (m *mockStorage) FullPath(relPath string) (string, error) {
	if relPath == "" {
		return "", errors.New("empty path")
	}
	return "/mock/" + relPath, nil
}

func (m *mockStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// ── Mock Mailer ──

type mockMailer struct {
	sent    chan mailer.Message
	release chan struct{} // 非 nil 时 Send 阻塞到关闭
}

func newMockMailer() *mockMailer {
	return &mockMailer{sent: make(chan mailer.Message, 64)}
}

func (m *mockMailer) Send(_ context.Context, msg mailer.Message) error {
	if m.release != nil {
		<-m.release
	}
	m.sent <- msg
	return nil
}

// ── Mock TokenBlacklist ──

type mockBlacklist struct {
	mu   sync.Mutex
	jtis map[string]time.Duration
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{jtis: make(map[string]time.Duration)}
}

func (m *mockBlacklist) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jtis[jti] = ttl
	return nil
}

func (m *mockBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jtis[jti]
	return ok, nil
}
