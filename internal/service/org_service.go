package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/models"
)

// OrgService manages clients, projects, contractors and employees.
type OrgService struct {
	clients     ClientStore
	projects    ProjectStore
	contractors ContractorStore
	employees   EmployeeStore
	compliance  *ComplianceService
}

func NewOrgService(clients ClientStore, projects ProjectStore, contractors ContractorStore, employees EmployeeStore, compliance *ComplianceService) *OrgService {
	return &OrgService{clients: clients, projects: projects, contractors: contractors, employees: employees, compliance: compliance}
}

type ClientInput struct {
	Name         string `json:"name" validate:"required"`
	TaxID        string `json:"taxId" validate:"required"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	Active       *bool  `json:"active"`
}

type ProjectInput struct {
	ClientID  string               `json:"clientId" validate:"required"`
	Name      string               `json:"name" validate:"required"`
	Code      string               `json:"code"`
	Location  string               `json:"location"`
	StartDate *time.Time           `json:"startDate"`
	EndDate   *time.Time           `json:"endDate"`
	Status    models.ProjectStatus `json:"status" validate:"omitempty,oneof=active closed"`
}

type ContractorInput struct {
	Name         string `json:"name" validate:"required"`
	TaxID        string `json:"taxId" validate:"required"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	Phone        string `json:"phone"`
}

type EmployeeInput struct {
	FullName       string `json:"fullName" validate:"required"`
	DocumentNumber string `json:"documentNumber" validate:"required"`
	Position       string `json:"position"`
	Active         *bool  `json:"active"`
}

func checkEmail(e string) error {
	if e == "" {
		return nil
	}
	if _, err := mail.ParseAddress(e); err != nil {
		return invalid("invalid email %q", e)
	}
	return nil
}

// Clients

func (s *OrgService) CreateClient(ctx context.Context, in ClientInput) (*models.Client, error) {
	c := &models.Client{Active: true}
	if err := applyClient(c, in); err != nil {
		return nil, err
	}
	if err := s.clients.Create(ctx, c); err != nil {
		return nil, storeErr(err, "client")
	}
	logrus.WithField("client_id", c.ID).Info("client created")
	return c, nil
}

func applyClient(c *models.Client, in ClientInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.TaxID) == "" {
		return invalid("name and taxId are required")
	}
	if err := checkEmail(in.ContactEmail); err != nil {
		return err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.TaxID = strings.TrimSpace(in.TaxID)
	c.ContactEmail = in.ContactEmail
	if in.Active != nil {
		c.Active = *in.Active
	}
	return nil
}

func (s *OrgService) GetClient(ctx context.Context, scope models.Scope, id string) (*models.Client, error) {
	if scope.IsAdmin() {
		c, err := s.clients.Get(ctx, id)
		return c, storeErr(err, "client")
	}
	visible, err := s.clients.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	for i := range visible {
		if visible[i].ID == id {
			return &visible[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *OrgService) ListClients(ctx context.Context, scope models.Scope) ([]models.Client, error) {
	return s.clients.List(ctx, scope)
}

func (s *OrgService) UpdateClient(ctx context.Context, id string, in ClientInput) (*models.Client, error) {
	c, err := s.clients.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "client")
	}
	if err := applyClient(c, in); err != nil {
		return nil, err
	}
	if err := s.clients.Update(ctx, c); err != nil {
		return nil, storeErr(err, "client")
	}
	return c, nil
}

func (s *OrgService) DeleteClient(ctx context.Context, id string) error {
	return storeErr(s.clients.Delete(ctx, id), "client")
}

// Projects

func (s *OrgService) CreateProject(ctx context.Context, in ProjectInput) (*models.Project, error) {
	if _, err := s.clients.Get(ctx, in.ClientID); err != nil {
		if err := storeErr(err, "client"); isNotFound(err) {
			return nil, invalid("client %s does not exist", in.ClientID)
		}
		return nil, err
	}
	p := &models.Project{ClientID: in.ClientID, Status: models.ProjectActive}
	if err := applyProject(p, in); err != nil {
		return nil, err
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, storeErr(err, "project")
	}
	logrus.WithFields(logrus.Fields{"project_id": p.ID, "client_id": p.ClientID}).Info("project created")
	return p, nil
}

func applyProject(p *models.Project, in ProjectInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name is required")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return invalid("endDate is before startDate")
	}
	switch in.Status {
	case "":
	case models.ProjectActive, models.ProjectClosed:
		p.Status = in.Status
	default:
		return invalid("unknown status %q", in.Status)
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Code = in.Code
	p.Location = in.Location
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
	return nil
}

// GetProject hides projects outside the caller's scope as not found.
func (s *OrgService) GetProject(ctx context.Context, scope models.Scope, id string) (*models.Project, error) {
	ok, err := s.projects.Visible(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	p, err := s.projects.Get(ctx, id)
	return p, storeErr(err, "project")
}

// ProjectVisible backs the websocket subscription check.
func (s *OrgService) ProjectVisible(ctx context.Context, scope models.Scope, id string) (bool, error) {
	return s.projects.Visible(ctx, id, scope)
}

func (s *OrgService) ListProjects(ctx context.Context, scope models.Scope, clientID string) ([]models.Project, error) {
	return s.projects.List(ctx, scope, clientID)
}

func (s *OrgService) UpdateProject(ctx context.Context, id string, in ProjectInput) (*models.Project, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "project")
	}
	if err := applyProject(p, in); err != nil {
		return nil, err
	}
	if err := s.projects.Update(ctx, p); err != nil {
		return nil, storeErr(err, "project")
	}
	return p, nil
}

func (s *OrgService) DeleteProject(ctx context.Context, id string) error {
	return storeErr(s.projects.Delete(ctx, id), "project")
}

// Contractors

func (s *OrgService) CreateContractor(ctx context.Context, in ContractorInput) (*models.Contractor, error) {
	c := &models.Contractor{}
	if err := applyContractor(c, in); err != nil {
		return nil, err
	}
	if err := s.contractors.Create(ctx, c); err != nil {
		return nil, storeErr(err, "contractor")
	}
	logrus.WithField("contractor_id", c.ID).Info("contractor created")
	return c, nil
}

func applyContractor(c *models.Contractor, in ContractorInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.TaxID) == "" {
		return invalid("name and taxId are required")
	}
	if err := checkEmail(in.ContactEmail); err != nil {
		return err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.TaxID = strings.TrimSpace(in.TaxID)
	c.ContactEmail = in.ContactEmail
	c.Phone = in.Phone
	return nil
}

func (s *OrgService) GetContractor(ctx context.Context, scope models.Scope, id string) (*models.Contractor, error) {
	if scope.IsAdmin() {
		c, err := s.contractors.Get(ctx, id)
		return c, storeErr(err, "contractor")
	}
	visible, err := s.contractors.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	for i := range visible {
		if visible[i].ID == id {
			return &visible[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *OrgService) ListContractors(ctx context.Context, scope models.Scope) ([]models.Contractor, error) {
	return s.contractors.List(ctx, scope)
}

func (s *OrgService) UpdateContractor(ctx context.Context, id string, in ContractorInput) (*models.Contractor, error) {
	c, err := s.contractors.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "contractor")
	}
	if err := applyContractor(c, in); err != nil {
		return nil, err
	}
	if err := s.contractors.Update(ctx, c); err != nil {
		return nil, storeErr(err, "contractor")
	}
	return c, nil
}

func (s *OrgService) DeleteContractor(ctx context.Context, id string) error {
	return storeErr(s.contractors.Delete(ctx, id), "contractor")
}

// Assign links the contractor to the project and generates its checklist.
func (s *OrgService) Assign(ctx context.Context, projectID, contractorID string) (*models.ProjectContractor, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, storeErr(err, "project")
	}
	if _, err := s.contractors.Get(ctx, contractorID); err != nil {
		return nil, storeErr(err, "contractor")
	}
	pc, err := s.contractors.Assign(ctx, projectID, contractorID)
	if err != nil {
		return nil, storeErr(err, "assignment")
	}
	logrus.WithFields(logrus.Fields{"project_id": projectID, "contractor_id": contractorID}).Info("contractor assigned")
	if err := s.compliance.SyncChecklist(ctx, pc.ID); err != nil {
		return nil, err
	}
	pc, err = s.contractors.Assignment(ctx, pc.ID)
	return pc, storeErr(err, "assignment")
}

func (s *OrgService) Unassign(ctx context.Context, projectID, contractorID string) error {
	return storeErr(s.contractors.Unassign(ctx, projectID, contractorID), "assignment")
}

// ProjectContractors lists the contractors of a visible project. A
// contractor user only sees its own link.
func (s *OrgService) ProjectContractors(ctx context.Context, scope models.Scope, projectID string) ([]models.ProjectContractor, error) {
	if _, err := s.GetProject(ctx, scope, projectID); err != nil {
		return nil, err
	}
	all, err := s.contractors.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if scope.Role != models.RoleContractor {
		return all, nil
	}
	out := make([]models.ProjectContractor, 0, 1)
	for _, pc := range all {
		if pc.ContractorID == scope.ContractorID {
			out = append(out, pc)
		}
	}
	return out, nil
}

func (s *OrgService) ContractorProjects(ctx context.Context, scope models.Scope, contractorID string) ([]models.ProjectContractor, error) {
	if scope.Role == models.RoleContractor && scope.ContractorID != contractorID {
		return nil, ErrNotFound
	}
	return s.contractors.ListByContractor(ctx, contractorID, scope)
}

// Employees

// canManageEmployees allows admins and the contractor's own users.
func canManageEmployees(scope models.Scope, contractorID string) error {
	if scope.IsAdmin() || (scope.Role == models.RoleContractor && scope.ContractorID == contractorID) {
		return nil
	}
	return ErrForbidden
}

func (s *OrgService) CreateEmployee(ctx context.Context, scope models.Scope, contractorID string, in EmployeeInput) (*models.Employee, error) {
	if err := canManageEmployees(scope, contractorID); err != nil {
		return nil, err
	}
	if _, err := s.contractors.Get(ctx, contractorID); err != nil {
		return nil, storeErr(err, "contractor")
	}
	e := &models.Employee{ContractorID: contractorID, Active: true}
	if err := applyEmployee(e, in); err != nil {
		return nil, err
	}
	if err := s.employees.Create(ctx, e); err != nil {
		return nil, storeErr(err, "employee")
	}
	logrus.WithFields(logrus.Fields{"employee_id": e.ID, "contractor_id": contractorID}).Info("employee created")
	if err := s.compliance.EmployeeChecklist(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func applyEmployee(e *models.Employee, in EmployeeInput) error {
	if strings.TrimSpace(in.FullName) == "" || strings.TrimSpace(in.DocumentNumber) == "" {
		return invalid("fullName and documentNumber are required")
	}
	e.FullName = strings.TrimSpace(in.FullName)
	e.DocumentNumber = strings.TrimSpace(in.DocumentNumber)
	e.Position = in.Position
	if in.Active != nil {
		e.Active = *in.Active
	}
	return nil
}

func (s *OrgService) ListEmployees(ctx context.Context, scope models.Scope, contractorID string, activeOnly bool) ([]models.Employee, error) {
	if _, err := s.GetContractor(ctx, scope, contractorID); err != nil {
		return nil, err
	}
	return s.employees.ListByContractor(ctx, contractorID, activeOnly)
}

func (s *OrgService) GetEmployee(ctx context.Context, scope models.Scope, id string) (*models.Employee, error) {
	e, err := s.employees.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "employee")
	}
	if _, err := s.GetContractor(ctx, scope, e.ContractorID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *OrgService) UpdateEmployee(ctx context.Context, scope models.Scope, id string, in EmployeeInput) (*models.Employee, error) {
	e, err := s.employees.Get(ctx, id)
	if err != nil {
		return nil, storeErr(err, "employee")
	}
	if err := canManageEmployees(scope, e.ContractorID); err != nil {
		return nil, err
	}
	wasActive := e.Active
	if err := applyEmployee(e, in); err != nil {
		return nil, err
	}
	if err := s.employees.Update(ctx, e); err != nil {
		return nil, storeErr(err, "employee")
	}
	if !wasActive && e.Active {
		if err := s.compliance.EmployeeChecklist(ctx, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (s *OrgService) DeleteEmployee(ctx context.Context, scope models.Scope, id string) error {
	e, err := s.employees.Get(ctx, id)
	if err != nil {
		return storeErr(err, "employee")
	}
	if err := canManageEmployees(scope, e.ContractorID); err != nil {
		return err
	}
	if err := s.employees.Delete(ctx, id); err != nil {
		return storeErr(err, "employee")
	}
	// the employee's documents went with it
	return s.compliance.RecomputeContractor(ctx, e.ContractorID)
}
