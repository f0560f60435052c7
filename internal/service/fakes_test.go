package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/realtime"
	"github.com/larscolombia/kapa/internal/repository"
)

// In-memory stores backing the service tests.

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*models.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.users {
		if x.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) List(_ context.Context, role models.Role, _ repository.Page) ([]models.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	return out, len(out), nil
}

func (f *fakeUsers) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) SetPassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// fakeProjects knows which contractors work on which project.
type fakeProjects struct {
	projects map[string]*models.Project
	members  map[string]bool // projectID + "/" + contractorID
}

func newFakeProjects(ps ...*models.Project) *fakeProjects {
	f := &fakeProjects{projects: map[string]*models.Project{}, members: map[string]bool{}}
	for _, p := range ps {
		f.projects[p.ID] = p
	}
	return f
}

func (f *fakeProjects) Create(_ context.Context, p *models.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeProjects) Get(_ context.Context, id string) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProjects) Visible(_ context.Context, id string, scope models.Scope) (bool, error) {
	p, ok := f.projects[id]
	if !ok {
		return false, nil
	}
	switch scope.Role {
	case models.RoleAdmin:
		return true, nil
	case models.RoleClient:
		return p.ClientID == scope.ClientID, nil
	}
	return f.members[id+"/"+scope.ContractorID], nil
}

func (f *fakeProjects) List(_ context.Context, _ models.Scope, _ string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range f.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProjects) Update(_ context.Context, p *models.Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeProjects) Delete(_ context.Context, id string) error {
	delete(f.projects, id)
	return nil
}

type fakeMaestros struct {
	rows []models.Maestro
}

func (f *fakeMaestros) Create(_ context.Context, m *models.Maestro) error {
	for _, r := range f.rows {
		if r.Category == m.Category && r.Code == m.Code {
			return repository.ErrDuplicate
		}
	}
	m.ID = uuid.NewString()
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMaestros) Get(_ context.Context, id string) (*models.Maestro, error) {
	for i := range f.rows {
		if f.rows[i].ID == id {
			m := f.rows[i]
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMaestros) List(_ context.Context, category string, activeOnly bool) ([]models.Maestro, error) {
	var out []models.Maestro
	for _, r := range f.rows {
		if (category == "" || r.Category == category) && (!activeOnly || r.Active) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMaestros) Categories(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, r := range f.rows {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeMaestros) ActiveCode(_ context.Context, category, code string) (bool, error) {
	for _, r := range f.rows {
		if r.Category == category && r.Code == code && r.Active {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMaestros) Update(_ context.Context, m *models.Maestro) error {
	for i := range f.rows {
		if f.rows[i].ID == m.ID {
			f.rows[i] = *m
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeIlv struct {
	mu      sync.Mutex
	seq     int64
	reports map[string]*models.IlvReport
	fields  map[string]map[string]string
	atts    map[string][]models.IlvAttachment
	tokens  map[string]*models.IlvCloseToken
	// onAttach runs under the lock right before an attachment insert.
	onAttach func(reportID string)
}

func newFakeIlv() *fakeIlv {
	return &fakeIlv{
		reports: map[string]*models.IlvReport{},
		fields:  map[string]map[string]string{},
		atts:    map[string][]models.IlvAttachment{},
		tokens:  map[string]*models.IlvCloseToken{},
	}
}

func (f *fakeIlv) Create(_ context.Context, rep *models.IlvReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rep.ID = uuid.NewString()
	rep.Number = models.FormatReportNumber(rep.Tipo, f.seq)
	cp := *rep
	f.reports[rep.ID] = &cp
	return nil
}

func (f *fakeIlv) Get(_ context.Context, id string) (*models.IlvReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeIlv) List(_ context.Context, rf repository.ReportFilter, _ models.Scope, _ repository.Page) ([]models.IlvReport, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IlvReport
	for _, r := range f.reports {
		if rf.Estado == "" || r.Estado == rf.Estado {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (f *fakeIlv) Update(_ context.Context, rep *models.IlvReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.reports[rep.ID]
	if !ok || !cur.IsOpen() {
		return repository.ErrReportNotOpen
	}
	cp := *rep
	f.reports[rep.ID] = &cp
	return nil
}

func (f *fakeIlv) closeLocked(id string, info repository.CloseInfo) error {
	r, ok := f.reports[id]
	if !ok || !r.IsOpen() {
		return repository.ErrReportNotOpen
	}
	at := info.ClosedAt
	r.Estado = models.EstadoCerrado
	r.ClosedAt = &at
	r.ClosedByName = info.Name
	r.ClosedByEmail = info.Email
	r.CloseNotes = info.Notes
	return nil
}

func (f *fakeIlv) Close(_ context.Context, id string, info repository.CloseInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.closeLocked(id, info); err != nil {
		return err
	}
	f.revokeLocked(id, info.ClosedAt)
	return nil
}

func (f *fakeIlv) CloseWithToken(_ context.Context, tokenID, ip, ua string, info repository.CloseInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenID]
	if !ok || t.UsedAt != nil || t.RevokedAt != nil {
		return repository.ErrTokenConsumed
	}
	if err := f.closeLocked(t.ReportID, info); err != nil {
		return err
	}
	at := info.ClosedAt
	t.UsedAt = &at
	t.UsedIP = ip
	t.UsedUserAgent = ua
	return nil
}

func (f *fakeIlv) Reopen(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Estado = models.EstadoAbierto
	r.ClosedAt = nil
	return nil
}

func (f *fakeIlv) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reports[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.reports, id)
	delete(f.atts, id)
	return nil
}

func (f *fakeIlv) Stats(context.Context, repository.ReportFilter, models.Scope) ([]models.IlvStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[[2]string]int{}
	for _, r := range f.reports {
		counts[[2]string{string(r.Tipo), string(r.Estado)}]++
	}
	var out []models.IlvStat
	for k, n := range counts {
		out = append(out, models.IlvStat{Tipo: models.IlvTipo(k[0]), Estado: models.IlvEstado(k[1]), Count: n})
	}
	return out, nil
}

func (f *fakeIlv) Fields(_ context.Context, reportID string) ([]models.IlvReportField, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.IlvReportField{}
	for k, v := range f.fields[reportID] {
		out = append(out, models.IlvReportField{ReportID: reportID, Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeIlv) SetFields(_ context.Context, reportID string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.fields[reportID]
	if m == nil {
		m = map[string]string{}
		f.fields[reportID] = m
	}
	for k, v := range fields {
		if v == "" {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	return nil
}

func (f *fakeIlv) CreateAttachment(_ context.Context, a *models.IlvAttachment, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onAttach != nil {
		f.onAttach(a.ReportID)
	}
	if r, ok := f.reports[a.ReportID]; !ok || !r.IsOpen() {
		return repository.ErrReportNotOpen
	}
	if len(f.atts[a.ReportID]) >= limit {
		return repository.ErrAttachmentLimit
	}
	for _, x := range f.atts[a.ReportID] {
		if x.SHA256 == a.SHA256 {
			return repository.ErrDuplicate
		}
	}
	a.ID = uuid.NewString()
	f.atts[a.ReportID] = append(f.atts[a.ReportID], *a)
	return nil
}

func (f *fakeIlv) Attachments(_ context.Context, reportID string) ([]models.IlvAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.IlvAttachment{}, f.atts[reportID]...), nil
}

func (f *fakeIlv) Attachment(_ context.Context, reportID, id string) (*models.IlvAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.atts[reportID] {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIlv) AttachmentByHash(_ context.Context, reportID, sha string) (*models.IlvAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.atts[reportID] {
		if a.SHA256 == sha {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIlv) DeleteAttachment(_ context.Context, reportID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reports[reportID]; !ok || !r.IsOpen() {
		return repository.ErrReportNotOpen
	}
	list := f.atts[reportID]
	for i, a := range list {
		if a.ID == id {
			f.atts[reportID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeIlv) revokeLocked(reportID string, at time.Time) {
	for _, t := range f.tokens {
		if t.ReportID == reportID && t.UsedAt == nil && t.RevokedAt == nil {
			ts := at
			t.RevokedAt = &ts
		}
	}
}

func (f *fakeIlv) CreateCloseToken(_ context.Context, t *models.IlvCloseToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeLocked(t.ReportID, t.CreatedAt)
	cp := *t
	f.tokens[t.ID] = &cp
	return nil
}

func (f *fakeIlv) CloseToken(_ context.Context, id string) (*models.IlvCloseToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeIlv) CloseTokens(_ context.Context, reportID string) ([]models.IlvCloseToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IlvCloseToken
	for _, t := range f.tokens {
		if t.ReportID == reportID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeForms struct {
	templates map[string]*models.FormTemplate
	versions  map[string][]models.FormTemplateVersion
}

func newFakeForms() *fakeForms {
	return &fakeForms{templates: map[string]*models.FormTemplate{}, versions: map[string][]models.FormTemplateVersion{}}
}

func (f *fakeForms) snapshot(t *models.FormTemplate) {
	f.versions[t.ID] = append(f.versions[t.ID], models.FormTemplateVersion{
		TemplateID: t.ID, Version: t.Version, Schema: t.Schema, Settings: t.Settings,
	})
}

func (f *fakeForms) Create(_ context.Context, t *models.FormTemplate) error {
	for _, x := range f.templates {
		if x.Slug == t.Slug {
			return fmt.Errorf("%w: form_templates_slug_key", repository.ErrDuplicate)
		}
	}
	t.ID = uuid.NewString()
	cp := *t
	f.templates[t.ID] = &cp
	f.snapshot(t)
	return nil
}

func (f *fakeForms) Get(_ context.Context, id string) (*models.FormTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeForms) GetBySlug(_ context.Context, slug string) (*models.FormTemplate, error) {
	for _, t := range f.templates {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeForms) List(context.Context, repository.FormFilter) ([]models.FormTemplate, error) {
	var out []models.FormTemplate
	for _, t := range f.templates {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeForms) Update(_ context.Context, t *models.FormTemplate, snapshot bool) error {
	if _, ok := f.templates[t.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *t
	f.templates[t.ID] = &cp
	if snapshot {
		f.snapshot(t)
	}
	return nil
}

func (f *fakeForms) Delete(_ context.Context, id string) error {
	if _, ok := f.templates[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.templates, id)
	return nil
}

func (f *fakeForms) Versions(_ context.Context, id string) ([]models.FormTemplateVersion, error) {
	return f.versions[id], nil
}

func (f *fakeForms) Version(_ context.Context, id string, version int) (*models.FormTemplateVersion, error) {
	for _, v := range f.versions[id] {
		if v.Version == version {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeSubs struct {
	mu      sync.Mutex
	subs    map[string]*models.FormSubmission
	history map[string][]models.FormSubmissionHistory
	drafts  map[string]*models.FormDraft
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{
		subs:    map[string]*models.FormSubmission{},
		history: map[string][]models.FormSubmissionHistory{},
		drafts:  map[string]*models.FormDraft{},
	}
}

func draftKey(templateID, reportID, userID string) string {
	return templateID + "/" + reportID + "/" + userID
}

func (f *fakeSubs) Upsert(_ context.Context, templateID, reportID string, fn repository.UpsertFunc) (*models.FormSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var existing *models.FormSubmission
	for _, s := range f.subs {
		if s.TemplateID == templateID && s.ReportID == reportID {
			cp := *s
			existing = &cp
		}
	}
	sub, hist, err := fn(existing)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		sub.ID = uuid.NewString()
	} else {
		sub.ID = existing.ID
	}
	cp := *sub
	f.subs[sub.ID] = &cp
	if hist != nil {
		hist.ID = uuid.NewString()
		hist.SubmissionID = sub.ID
		f.history[sub.ID] = append(f.history[sub.ID], *hist)
	}
	return sub, nil
}

func (f *fakeSubs) Get(_ context.Context, id string) (*models.FormSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubs) GetByReport(_ context.Context, templateID, reportID string) (*models.FormSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.TemplateID == templateID && s.ReportID == reportID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubs) List(_ context.Context, sf repository.SubmissionFilter, _ models.Scope, _ repository.Page) ([]models.FormSubmission, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.FormSubmission{}
	for _, s := range f.subs {
		if sf.TemplateID != "" && s.TemplateID != sf.TemplateID {
			continue
		}
		if sf.ReportID != "" && s.ReportID != sf.ReportID {
			continue
		}
		if sf.Status != "" && s.Status != sf.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeSubs) History(_ context.Context, id string) ([]models.FormSubmissionHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.FormSubmissionHistory{}, f.history[id]...), nil
}

func (f *fakeSubs) HistoryEntry(_ context.Context, id string, version int) (*models.FormSubmissionHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.history[id] {
		if h.Version == version {
			return &h, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.subs, id)
	return nil
}

func (f *fakeSubs) CountByTemplate(_ context.Context, templateID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func (f *fakeSubs) SaveDraft(_ context.Context, d *models.FormDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = uuid.NewString()
	cp := *d
	f.drafts[draftKey(d.TemplateID, d.ReportID, d.UserID)] = &cp
	return nil
}

func (f *fakeSubs) Draft(_ context.Context, templateID, reportID, userID string) (*models.FormDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[draftKey(templateID, reportID, userID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeSubs) DeleteDraft(_ context.Context, templateID, reportID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, draftKey(templateID, reportID, userID))
	return nil
}

type fakeNotifications struct {
	mu   sync.Mutex
	rows []models.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uuid.NewString()
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeNotifications) List(_ context.Context, nf repository.NotificationFilter, _ repository.Page) ([]models.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.rows {
		if nf.EntityID == "" || n.EntityID == nf.EntityID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Publish(ev realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev.Type)
}

// fixedClock returns a settable clock.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeAccess struct {
	mu    sync.Mutex
	roles map[models.Role]string
	perms map[models.Role]map[string]bool
}

func newFakeAccess(roles ...models.Role) *fakeAccess {
	f := &fakeAccess{roles: map[models.Role]string{}, perms: map[models.Role]map[string]bool{}}
	for _, r := range roles {
		f.roles[r] = string(r)
	}
	return f
}

func (f *fakeAccess) EnsureRole(_ context.Context, role models.RoleInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[role.Name] = role.Description
	return nil
}

func (f *fakeAccess) ListRoles(context.Context) ([]models.RoleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RoleInfo
	for name, desc := range f.roles {
		out = append(out, models.RoleInfo{Name: name, Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeAccess) RoleExists(_ context.Context, role models.Role) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.roles[role]
	return ok, nil
}

func (f *fakeAccess) Permissions(_ context.Context, role models.Role) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for p := range f.perms[role] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAccess) HasPermission(_ context.Context, role models.Role, perm string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[role][perm], nil
}

func (f *fakeAccess) Grant(_ context.Context, role models.Role, perm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.perms[role] == nil {
		f.perms[role] = map[string]bool{}
	}
	f.perms[role][perm] = true
	return nil
}

func (f *fakeAccess) Revoke(_ context.Context, role models.Role, perm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.perms[role][perm] {
		return repository.ErrNotFound
	}
	delete(f.perms[role], perm)
	return nil
}

type fakeCriteria struct {
	mu       sync.Mutex
	criteria map[string]*models.Criterion
	subs     map[string]*models.Subcriterion
}

func newFakeCriteria() *fakeCriteria {
	return &fakeCriteria{criteria: map[string]*models.Criterion{}, subs: map[string]*models.Subcriterion{}}
}

func (f *fakeCriteria) Create(_ context.Context, c *models.Criterion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.NewString()
	cp := *c
	f.criteria[c.ID] = &cp
	return nil
}

func (f *fakeCriteria) List(context.Context) ([]models.Criterion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Criterion
	for _, c := range f.criteria {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakeCriteria) Get(_ context.Context, id string) (*models.Criterion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.criteria[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCriteria) Update(_ context.Context, c *models.Criterion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.criteria[c.ID] = &cp
	return nil
}

func (f *fakeCriteria) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.criteria[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.criteria, id)
	return nil
}

func (f *fakeCriteria) CreateSub(_ context.Context, s *models.Subcriterion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.NewString()
	cp := *s
	f.subs[s.ID] = &cp
	return nil
}

func (f *fakeCriteria) GetSub(_ context.Context, id string) (*models.Subcriterion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeCriteria) ListSubs(_ context.Context, criterionID string, scope models.SubcriterionScope) ([]models.Subcriterion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subcriterion
	for _, s := range f.subs {
		if (criterionID == "" || s.CriterionID == criterionID) && (scope == "" || s.Scope == scope) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCriteria) UpdateSub(_ context.Context, s *models.Subcriterion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.subs[s.ID] = &cp
	return nil
}

func (f *fakeCriteria) DeleteSub(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
	return nil
}

type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]*models.Document{}}
}

func (f *fakeDocs) EnsureChecklist(_ context.Context, pcID string, employeeID *string, subIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emp := ""
	if employeeID != nil {
		emp = *employeeID
	}
	created := 0
	for _, sub := range subIDs {
		exists := false
		for _, d := range f.docs {
			de := ""
			if d.EmployeeID != nil {
				de = *d.EmployeeID
			}
			if d.ProjectContractorID == pcID && d.SubcriterionID == sub && de == emp {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		d := &models.Document{
			ID:                  uuid.NewString(),
			ProjectContractorID: pcID,
			SubcriterionID:      sub,
			EmployeeID:          models.StrPtr(emp),
			State:               models.DocNotSubmitted,
		}
		f.docs[d.ID] = d
		created++
	}
	return created, nil
}

func (f *fakeDocs) Get(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) ListByAssignment(_ context.Context, pcID string, df repository.DocumentFilter) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Document{}
	for _, d := range f.docs {
		if d.ProjectContractorID != pcID || (df.State != "" && d.State != df.State) {
			continue
		}
		if df.EmployeeID != "" && (d.EmployeeID == nil || *d.EmployeeID != df.EmployeeID) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDocs) Save(_ context.Context, d *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[d.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *d
	f.docs[d.ID] = &cp
	return nil
}

func (f *fakeDocs) Progress(_ context.Context, pcID string) (done, total int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if d.ProjectContractorID != pcID {
			continue
		}
		total++
		if d.State.Complete() {
			done++
		}
	}
	return done, total, nil
}

func (f *fakeDocs) CountByState(context.Context, models.Scope) ([]repository.StateCount, error) {
	return nil, nil
}

// fakeContractors holds contractors and their project assignments.
type fakeContractors struct {
	mu          sync.Mutex
	projects    *fakeProjects
	contractors map[string]*models.Contractor
	pcs         map[string]*models.ProjectContractor
}

func newFakeContractors(projects *fakeProjects, cs ...*models.Contractor) *fakeContractors {
	f := &fakeContractors{projects: projects, contractors: map[string]*models.Contractor{}, pcs: map[string]*models.ProjectContractor{}}
	for _, c := range cs {
		f.contractors[c.ID] = c
	}
	return f
}

func (f *fakeContractors) Create(_ context.Context, c *models.Contractor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.NewString()
	cp := *c
	f.contractors[c.ID] = &cp
	return nil
}

func (f *fakeContractors) Get(_ context.Context, id string) (*models.Contractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contractors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContractors) List(_ context.Context, scope models.Scope) ([]models.Contractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Contractor
	for _, c := range f.contractors {
		switch scope.Role {
		case models.RoleAdmin:
			out = append(out, *c)
		case models.RoleContractor:
			if c.ID == scope.ContractorID {
				out = append(out, *c)
			}
		case models.RoleClient:
			for _, pc := range f.pcs {
				if pc.ContractorID == c.ID && f.projects.projects[pc.ProjectID].ClientID == scope.ClientID {
					out = append(out, *c)
					break
				}
			}
		}
	}
	return out, nil
}

func (f *fakeContractors) Update(_ context.Context, c *models.Contractor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.contractors[c.ID] = &cp
	return nil
}

func (f *fakeContractors) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.contractors, id)
	return nil
}

func (f *fakeContractors) Assign(_ context.Context, projectID, contractorID string) (*models.ProjectContractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pc := range f.pcs {
		if pc.ProjectID == projectID && pc.ContractorID == contractorID {
			return nil, repository.ErrDuplicate
		}
	}
	pc := &models.ProjectContractor{ID: uuid.NewString(), ProjectID: projectID, ContractorID: contractorID}
	f.pcs[pc.ID] = pc
	f.projects.members[projectID+"/"+contractorID] = true
	cp := *pc
	return &cp, nil
}

func (f *fakeContractors) Unassign(_ context.Context, projectID, contractorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, pc := range f.pcs {
		if pc.ProjectID == projectID && pc.ContractorID == contractorID {
			delete(f.pcs, id)
			delete(f.projects.members, projectID+"/"+contractorID)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeContractors) Assignment(_ context.Context, id string) (*models.ProjectContractor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc, ok := f.pcs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pc
	return &cp, nil
}

func (f *fakeContractors) filter(keep func(*models.ProjectContractor) bool) []models.ProjectContractor {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProjectContractor
	for _, pc := range f.pcs {
		if keep(pc) {
			out = append(out, *pc)
		}
	}
	return out
}

func (f *fakeContractors) ListByProject(_ context.Context, projectID string) ([]models.ProjectContractor, error) {
	return f.filter(func(pc *models.ProjectContractor) bool { return pc.ProjectID == projectID }), nil
}

func (f *fakeContractors) ListByContractor(_ context.Context, contractorID string, _ models.Scope) ([]models.ProjectContractor, error) {
	return f.filter(func(pc *models.ProjectContractor) bool { return pc.ContractorID == contractorID }), nil
}

func (f *fakeContractors) Assignments(_ context.Context, contractorID string) ([]models.ProjectContractor, error) {
	return f.filter(func(pc *models.ProjectContractor) bool { return pc.ContractorID == contractorID }), nil
}

func (f *fakeContractors) SetCompletion(_ context.Context, id string, completion float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc, ok := f.pcs[id]
	if !ok {
		return repository.ErrNotFound
	}
	pc.Completion = completion
	return nil
}

type fakeEmployees struct {
	mu   sync.Mutex
	emps map[string]*models.Employee
}

func newFakeEmployees(es ...*models.Employee) *fakeEmployees {
	f := &fakeEmployees{emps: map[string]*models.Employee{}}
	for _, e := range es {
		f.emps[e.ID] = e
	}
	return f
}

func (f *fakeEmployees) Create(_ context.Context, e *models.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.emps {
		if x.ContractorID == e.ContractorID && x.DocumentNumber == e.DocumentNumber {
			return repository.ErrDuplicate
		}
	}
	e.ID = uuid.NewString()
	cp := *e
	f.emps[e.ID] = &cp
	return nil
}

func (f *fakeEmployees) Get(_ context.Context, id string) (*models.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.emps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEmployees) ListByContractor(_ context.Context, contractorID string, activeOnly bool) ([]models.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Employee
	for _, e := range f.emps {
		if e.ContractorID == contractorID && (!activeOnly || e.Active) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEmployees) Update(_ context.Context, e *models.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.emps[e.ID] = &cp
	return nil
}

func (f *fakeEmployees) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.emps, id)
	return nil
}
