package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/handler"
	"github.com/larscolombia/kapa/internal/metrics"
	mw "github.com/larscolombia/kapa/internal/middleware"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/realtime"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth       *handler.AuthHandler
	Admin      *handler.AdminHandler
	Org        *handler.OrgHandler
	Compliance *handler.ComplianceHandler
	Ilv        *handler.IlvHandler
	Forms      *handler.FormHandler
	Subs       *handler.SubmissionHandler
	Files      *handler.FileHandler
	Maestros   *handler.MaestroHandler
	Dashboard  *handler.DashboardHandler
}

type Config struct {
	JWTSecret   string
	Origins     []string
	Permissions auth.PermissionChecker
	// ProjectVisible authorizes websocket subscriptions.
	ProjectVisible realtime.ProjectAuthorizer
	Hub            *realtime.Hub
	// CloseLimiter throttles the public close-link endpoints.
	CloseLimiter *mw.RateLimiter
	// Ping backs /healthz.
	Ping func(ctx context.Context) error
}

func New(cfg Config, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.Metrics)
	r.Use(mw.CORS(cfg.Origins))

	r.Get("/healthz", healthz(cfg.Ping))
	r.Handle("/metrics", metrics.Handler())

	perm := func(p string) func(http.Handler) http.Handler {
		return auth.RequirePermission(cfg.Permissions, p)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.Auth.Login)

		r.Route("/public/ilv/close/{token}", func(r chi.Router) {
			if cfg.CloseLimiter != nil {
				r.Use(cfg.CloseLimiter.Handler)
			}
			r.Get("/", h.Ilv.PreviewByToken)
			r.Post("/", h.Ilv.CloseByToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.JWTSecret))

			r.Get("/auth/me", h.Auth.Me)
			r.Get("/dashboard", h.Dashboard.Get)
			if cfg.Hub != nil {
				r.Get("/ws", cfg.Hub.Handler(cfg.Origins, cfg.ProjectVisible))
			}

			// Users and role permissions
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermUsersManage))
				r.Get("/users", h.Admin.ListUsers)
				r.Post("/users", h.Admin.CreateUser)
				r.Get("/users/{userId}", h.Admin.GetUser)
				r.Put("/users/{userId}", h.Admin.UpdateUser)
				r.Delete("/users/{userId}", h.Admin.DeactivateUser)
				r.Post("/users/{userId}/password", h.Admin.ResetPassword)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Get("/roles", h.Admin.Roles)
				r.Get("/roles/{role}/permissions", h.Admin.Permissions)
				r.Post("/roles/{role}/permissions", h.Admin.Grant)
				r.Delete("/roles/{role}/permissions/{permission}", h.Admin.Revoke)
			})
			r.With(perm(models.PermNotificationsView)).Get("/notifications", h.Admin.Notifications)

			// Organisation
			r.Get("/clients", h.Org.ListClients)
			r.Get("/clients/{clientId}", h.Org.GetClient)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermClientsManage))
				r.Post("/clients", h.Org.CreateClient)
				r.Put("/clients/{clientId}", h.Org.UpdateClient)
				r.Delete("/clients/{clientId}", h.Org.DeleteClient)
			})

			r.Get("/projects", h.Org.ListProjects)
			r.Get("/projects/{projectId}", h.Org.GetProject)
			r.Get("/projects/{projectId}/contractors", h.Org.ProjectContractors)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermProjectsManage))
				r.Post("/projects", h.Org.CreateProject)
				r.Put("/projects/{projectId}", h.Org.UpdateProject)
				r.Delete("/projects/{projectId}", h.Org.DeleteProject)
				r.Post("/projects/{projectId}/contractors", h.Org.Assign)
				r.Delete("/projects/{projectId}/contractors/{contractorId}", h.Org.Unassign)
			})

			r.Get("/contractors", h.Org.ListContractors)
			r.Get("/contractors/{contractorId}", h.Org.GetContractor)
			r.Get("/contractors/{contractorId}/projects", h.Org.ContractorProjects)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermContractorsManage))
				r.Post("/contractors", h.Org.CreateContractor)
				r.Put("/contractors/{contractorId}", h.Org.UpdateContractor)
				r.Delete("/contractors/{contractorId}", h.Org.DeleteContractor)
			})

			r.Get("/contractors/{contractorId}/employees", h.Org.ListEmployees)
			r.Get("/employees/{employeeId}", h.Org.GetEmployee)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermEmployeesManage))
				r.Post("/contractors/{contractorId}/employees", h.Org.CreateEmployee)
				r.Put("/employees/{employeeId}", h.Org.UpdateEmployee)
				r.Delete("/employees/{employeeId}", h.Org.DeleteEmployee)
			})

			// Compliance
			r.Get("/criteria", h.Compliance.ListCriteria)
			r.Get("/subcriteria", h.Compliance.ListSubcriteria)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermCriteriaManage))
				r.Post("/criteria", h.Compliance.CreateCriterion)
				r.Put("/criteria/{criterionId}", h.Compliance.UpdateCriterion)
				r.Delete("/criteria/{criterionId}", h.Compliance.DeleteCriterion)
				r.Post("/subcriteria", h.Compliance.CreateSubcriterion)
				r.Put("/subcriteria/{subcriterionId}", h.Compliance.UpdateSubcriterion)
				r.Delete("/subcriteria/{subcriterionId}", h.Compliance.DeleteSubcriterion)
			})
			r.Get("/project-contractors/{pcId}/documents", h.Compliance.ListDocuments)
			r.Get("/documents/{documentId}", h.Compliance.GetDocument)
			r.Get("/documents/{documentId}/file", h.Compliance.Download)
			r.With(perm(models.PermDocumentsUpload)).Post("/documents/{documentId}/file", h.Compliance.Upload)
			r.With(perm(models.PermDocumentsReview)).Post("/documents/{documentId}/review", h.Compliance.Review)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))
				r.Post("/documents/{documentId}/not-applicable", h.Compliance.MarkNotApplicable)
				r.Post("/documents/{documentId}/reset", h.Compliance.Reset)
			})

			// ILV
			r.Get("/ilv/stats", h.Ilv.Stats)
			r.Route("/ilv/reports", func(r chi.Router) {
				r.Get("/", h.Ilv.List)
				r.With(perm(models.PermILVCreate)).Post("/", h.Ilv.Create)
				r.Route("/{reportId}", func(r chi.Router) {
					r.Get("/", h.Ilv.Get)
					r.Get("/fields", h.Ilv.Fields)
					r.Get("/attachments", h.Ilv.Attachments)
					r.Get("/attachments/{attachmentId}", h.Ilv.DownloadAttachment)
					r.Get("/pdf", h.Ilv.PDF)

					r.Group(func(r chi.Router) {
						r.Use(perm(models.PermILVCreate))
						r.Put("/", h.Ilv.Update)
						r.Put("/fields", h.Ilv.SetFields)
						r.Post("/attachments", h.Ilv.AddAttachment)
						r.Delete("/attachments/{attachmentId}", h.Ilv.DeleteAttachment)
					})
					r.Group(func(r chi.Router) {
						r.Use(perm(models.PermILVClose))
						r.Get("/close-tokens", h.Ilv.CloseTokens)
						r.Post("/close-tokens", h.Ilv.IssueCloseToken)
						r.Post("/close", h.Ilv.Close)
					})
					r.Group(func(r chi.Router) {
						r.Use(perm(models.PermILVAdmin))
						r.Post("/reopen", h.Ilv.Reopen)
						r.Delete("/", h.Ilv.Delete)
					})
				})
			})

			// Forms and submissions
			r.Get("/forms", h.Forms.List)
			r.Get("/forms/{formId}", h.Forms.Get)
			r.Get("/forms/{formId}/versions", h.Forms.Versions)
			r.Get("/forms/{formId}/render", h.Forms.Render)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermFormsManage))
				r.Post("/forms", h.Forms.Create)
				r.Put("/forms/{formId}", h.Forms.Update)
				r.Delete("/forms/{formId}", h.Forms.Delete)
				r.Post("/forms/{formId}/activate", h.Forms.Activate)
				r.Post("/forms/{formId}/deactivate", h.Forms.Deactivate)
				r.Delete("/submissions/{submissionId}", h.Subs.Delete)
			})

			r.Get("/forms/{formId}/submissions", h.Subs.List)
			r.Get("/forms/{formId}/reports/{reportId}/submission", h.Subs.GetForReport)
			r.Get("/forms/{formId}/reports/{reportId}/draft", h.Subs.Draft)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermFormsSubmit))
				r.Put("/forms/{formId}/reports/{reportId}/submission", h.Subs.Submit)
				r.Put("/forms/{formId}/reports/{reportId}/draft", h.Subs.SaveDraft)
				r.Delete("/forms/{formId}/reports/{reportId}/draft", h.Subs.DiscardDraft)
			})
			r.Get("/submissions/{submissionId}", h.Subs.Get)
			r.Get("/submissions/{submissionId}/history", h.Subs.History)
			r.Get("/submissions/{submissionId}/history/{version}", h.Subs.HistoryEntry)
			r.Post("/search", h.Subs.Search)

			// Document repository
			r.Get("/files", h.Files.List)
			r.Post("/files", h.Files.Upload)
			r.Get("/files/{fileId}", h.Files.Download)
			r.Delete("/files/{fileId}", h.Files.Delete)

			// Maestros
			r.Get("/maestros", h.Maestros.Categories)
			r.Get("/maestros/{category}", h.Maestros.List)
			r.Group(func(r chi.Router) {
				r.Use(perm(models.PermMaestrosManage))
				r.Post("/maestros", h.Maestros.Create)
				r.Put("/maestros/items/{maestroId}", h.Maestros.Update)
				r.Delete("/maestros/items/{maestroId}", h.Maestros.Deactivate)
			})
		})
	})

	return r
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	}
}
