package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/larscolombia/kapa/internal/service"
)

type OrgHandler struct {
	svc *service.OrgService
}

func NewOrgHandler(svc *service.OrgService) *OrgHandler {
	return &OrgHandler{svc: svc}
}

// Clients

func (h *OrgHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context(), scopeOf(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (h *OrgHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var in service.ClientInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.CreateClient(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *OrgHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetClient(r.Context(), scopeOf(r), chi.URLParam(r, "clientId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *OrgHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var in service.ClientInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.UpdateClient(r.Context(), chi.URLParam(r, "clientId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *OrgHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clientId")
	if err := h.svc.DeleteClient(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// Projects

func (h *OrgHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context(), scopeOf(r), r.URL.Query().Get("clientId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *OrgHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in service.ProjectInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.svc.CreateProject(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *OrgHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProject(r.Context(), scopeOf(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrgHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var in service.ProjectInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.svc.UpdateProject(r.Context(), chi.URLParam(r, "projectId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrgHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectId")
	if err := h.svc.DeleteProject(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *OrgHandler) ProjectContractors(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.ProjectContractors(r.Context(), scopeOf(r), chi.URLParam(r, "projectId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

type assignRequest struct {
	ContractorID string `json:"contractorId" validate:"required"`
}

func (h *OrgHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := readJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	pc, err := h.svc.Assign(r.Context(), chi.URLParam(r, "projectId"), req.ContractorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pc)
}

func (h *OrgHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unassign(r.Context(), chi.URLParam(r, "projectId"), chi.URLParam(r, "contractorId")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Contractors

func (h *OrgHandler) ListContractors(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListContractors(r.Context(), scopeOf(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrgHandler) CreateContractor(w http.ResponseWriter, r *http.Request) {
	var in service.ContractorInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.CreateContractor(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *OrgHandler) GetContractor(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetContractor(r.Context(), scopeOf(r), chi.URLParam(r, "contractorId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *OrgHandler) UpdateContractor(w http.ResponseWriter, r *http.Request) {
	var in service.ContractorInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.svc.UpdateContractor(r.Context(), chi.URLParam(r, "contractorId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *OrgHandler) DeleteContractor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contractorId")
	if err := h.svc.DeleteContractor(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *OrgHandler) ContractorProjects(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.ContractorProjects(r.Context(), scopeOf(r), chi.URLParam(r, "contractorId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// Employees

func (h *OrgHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListEmployees(r.Context(), scopeOf(r), chi.URLParam(r, "contractorId"), queryBool(r, "active"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrgHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var in service.EmployeeInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	e, err := h.svc.CreateEmployee(r.Context(), scopeOf(r), chi.URLParam(r, "contractorId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *OrgHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetEmployee(r.Context(), scopeOf(r), chi.URLParam(r, "employeeId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrgHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var in service.EmployeeInput
	if err := readJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	e, err := h.svc.UpdateEmployee(r.Context(), scopeOf(r), chi.URLParam(r, "employeeId"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *OrgHandler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "employeeId")
	if err := h.svc.DeleteEmployee(r.Context(), scopeOf(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
